package rpc

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"moneymarket/crypto"
	"moneymarket/integrations/eventlog"
	"moneymarket/native/lending"
	"moneymarket/native/votes"
	"moneymarket/observability"
)

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lending.ErrMarketNotListed):
		status = http.StatusNotFound
	case errors.Is(err, votes.ErrNotYetDetermined):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("rpc request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", requestIDFrom(r)),
			slog.Any("error", err))
	}
	writeError(w, r, status, err.Error())
}

func accountParam(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid account: "+err.Error())
		return crypto.ZeroAddress, false
	}
	return addr, true
}

// marketParam accepts a market address or its underlying asset symbol.
func marketParam(r *http.Request) crypto.Address {
	raw := chi.URLParam(r, "market")
	if addr, err := crypto.ParseAddress(raw); err == nil {
		return addr
	}
	return lending.MarketAddress(raw)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	height, ts := s.backend.Block()
	writeJSON(w, http.StatusOK, statusView{Height: height, Timestamp: ts, GovernanceAsset: s.backend.GovernanceAsset()})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	var view paramsView
	err := s.backend.WithLending(func(p *lending.Proxy) error {
		params, err := p.Params()
		if err != nil {
			return err
		}
		view = newParamsView(params)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	views := []marketView{}
	err := s.backend.WithLending(func(p *lending.Proxy) error {
		markets, err := p.AllMarkets()
		if err != nil {
			return err
		}
		for _, addr := range markets {
			snap, err := p.MarketSnapshot(addr)
			if err != nil {
				return err
			}
			views = append(views, newMarketView(snap))
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	market := marketParam(r)
	var view marketView
	err := s.backend.WithLending(func(p *lending.Proxy) error {
		snap, err := p.MarketSnapshot(market)
		if err != nil {
			return err
		}
		view = newMarketView(snap)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// Only listed markets get a label series.
	observability.API().RecordMarketLookup(view.Symbol)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLiquidity(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	var liq *lending.Liquidity
	err := s.backend.WithLending(func(p *lending.Proxy) error {
		var err error
		liq, err = p.AccountLiquidity(account)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidityView{Account: account.String(), Liquidity: amount(liq.Liquidity), Shortfall: amount(liq.Shortfall)})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	views := []positionView{}
	err := s.backend.WithLending(func(p *lending.Proxy) error {
		snaps, err := p.AccountSnapshots(account)
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			views = append(views, newPositionView(snap))
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	views := make([]rewardView, 0, len(lending.RewardTypes))
	err := s.backend.WithLending(func(p *lending.Proxy) error {
		for _, rt := range lending.RewardTypes {
			accrued, err := p.RewardAccrued(rt, account)
			if err != nil {
				return err
			}
			views = append(views, rewardView{Type: rt.String(), Accrued: amount(accrued)})
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	summary, err := s.backend.Votes(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, votesView{
		Account:        account.String(),
		Delegate:       address(summary.Delegate),
		CurrentVotes:   amount(summary.CurrentVotes),
		Nonce:          summary.Nonce,
		NumCheckpoints: summary.NumCheckpoints,
	})
}

func (s *Server) handlePriorVotes(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	block, err := strconv.ParseUint(r.URL.Query().Get("block"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "block query parameter must be an unsigned integer")
		return
	}
	prior, err := s.backend.PriorVotes(account, block)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, priorVotesView{Account: account.String(), Block: block, Votes: amount(prior)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, r, http.StatusNotFound, "event log disabled")
		return
	}
	q := r.URL.Query()
	filter := eventlog.Filter{Type: q.Get("type")}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "after must be an unsigned integer")
			return
		}
		filter.AfterID = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	records, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]eventView, 0, len(records))
	for _, rec := range records {
		view, err := newEventView(rec)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}
