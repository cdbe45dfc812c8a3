package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"whalehub/app"
	"whalehub/core/epoch"
	"whalehub/core/types"
	"whalehub/native/bonding"
	"whalehub/native/incentive"
	"whalehub/services/indexer"
)

const maxTxBody = 1 << 20

var (
	notFound = []error{
		epoch.ErrNoEpochFound,
		epoch.ErrNoEpochs,
		bonding.ErrRewardBucketNotFound,
		incentive.ErrNonExistentIncentive,
		incentive.ErrNonExistentPosition,
		incentive.ErrNoOpenPositions,
	}
	unavailable = []error{
		app.ErrNotInitialized,
		epoch.ErrNotInstantiated,
		bonding.ErrNotInstantiated,
		incentive.ErrNotInstantiated,
	}
	forbidden = []error{
		epoch.ErrUnauthorized,
		bonding.ErrUnauthorized,
		incentive.ErrUnauthorized,
	}
)

func statusFor(err error, fallback int) int {
	matches := func(set []error) bool {
		for _, target := range set {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
	var snapshot *incentive.GlobalWeightSnapshotNotTakenError
	switch {
	case matches(notFound), errors.As(err, &snapshot):
		return http.StatusNotFound
	case matches(unavailable):
		return http.StatusServiceUnavailable
	case matches(forbidden):
		return http.StatusForbidden
	}
	return fallback
}

// query runs fn against committed state and writes its result.
func (s *Server) query(w http.ResponseWriter, fn func(*app.Modules) (interface{}, error)) {
	if ok, err := s.app.Initialized(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	} else if !ok {
		writeError(w, http.StatusServiceUnavailable, app.ErrNotInitialized)
		return
	}
	var out interface{}
	err := s.app.View(func(m *app.Modules) error {
		var err error
		out, err = fn(m)
		return err
	})
	if err != nil {
		writeError(w, statusFor(err, http.StatusInternalServerError), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Initialized bool          `json:"initialized"`
	Height      uint64        `json:"height"`
	AppHash     string        `json:"app_hash"`
	Addresses   app.Addresses `json:"module_addresses"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	ok, err := s.app.Initialized()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	height, err := s.app.Height()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	hash, err := s.app.AppHash()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Initialized: ok,
		Height:      height,
		AppHash:     hex.EncodeToString(hash),
		Addresses:   s.app.Addresses(),
	})
}

func (s *Server) handleMsgTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, app.MsgTypes())
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	var env app.Envelope
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode envelope: %w", err))
		return
	}
	claims, ok := claimsFrom(r.Context())
	if !ok || !claims.Allows(env.Sender) {
		writeError(w, http.StatusForbidden, errors.New("token subject does not match sender"))
		return
	}
	msg, err := env.Decode()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.app.Execute(r.Context(), env.Sender, env.Funds, msg)
	if err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCurrentEpoch(w http.ResponseWriter, _ *http.Request) {
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Epochs.CurrentEpoch() })
}

func (s *Server) handleEpochConfig(w http.ResponseWriter, _ *http.Request) {
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Epochs.Config() })
}

func (s *Server) handleHooks(w http.ResponseWriter, _ *http.Request) {
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Epochs.Hooks() })
}

func (s *Server) handleEpoch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid epoch id: %w", err))
		return
	}
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Epochs.Epoch(id) })
}

func (s *Server) handleBondingConfig(w http.ResponseWriter, _ *http.Request) {
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Bonding.Config() })
}

func (s *Server) handleBonded(w http.ResponseWriter, r *http.Request) {
	addr := optionalString(r, "address")
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Bonding.Bonded(addr) })
}

func (s *Server) handleUnbonding(w http.ResponseWriter, r *http.Request) {
	addr, denom := chi.URLParam(r, "addr"), r.URL.Query().Get("denom")
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Bonding.Unbonding(addr, denom) })
}

type amountResponse struct {
	Amount *big.Int `json:"amount"`
}

func (s *Server) handleWithdrawable(w http.ResponseWriter, r *http.Request) {
	addr, denom := chi.URLParam(r, "addr"), r.URL.Query().Get("denom")
	s.query(w, func(m *app.Modules) (interface{}, error) {
		total, err := m.Bonding.Withdrawable(addr, denom)
		if err != nil {
			return nil, err
		}
		return amountResponse{Amount: total}, nil
	})
}

func (s *Server) handleBondingWeight(w http.ResponseWriter, r *http.Request) {
	epochID, err := optionalUint(r, "epoch_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr := chi.URLParam(r, "addr")
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Bonding.Weight(addr, epochID) })
}

func (s *Server) handleGlobalIndex(w http.ResponseWriter, r *http.Request) {
	bucket, err := optionalUint(r, "epoch_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Bonding.GlobalIndex(bucket) })
}

func (s *Server) handleClaimable(w http.ResponseWriter, r *http.Request) {
	addr := optionalString(r, "address")
	s.query(w, func(m *app.Modules) (interface{}, error) {
		buckets, err := m.Bonding.Claimable(addr)
		if err != nil {
			return nil, err
		}
		if buckets == nil {
			buckets = []*bonding.RewardBucket{}
		}
		return buckets, nil
	})
}

func (s *Server) handleBondingRewards(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Bonding.Rewards(addr) })
}

func (s *Server) handleRewardBucket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid bucket id: %w", err))
		return
	}
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Bonding.RewardBucket(id) })
}

func (s *Server) handleIncentiveConfig(w http.ResponseWriter, _ *http.Request) {
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Incentive.Config() })
}

func (s *Server) handleIncentives(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := incentive.IncentivesFilter{
		LPDenom:        q.Get("lp_denom"),
		IncentiveDenom: q.Get("incentive_denom"),
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	startAfter := q.Get("start_after")
	s.query(w, func(m *app.Modules) (interface{}, error) {
		list, err := m.Incentive.Incentives(filter, startAfter, limit)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []*incentive.Incentive{}
		}
		return list, nil
	})
}

func (s *Server) handleIncentive(w http.ResponseWriter, r *http.Request) {
	filter := incentive.IncentivesFilter{Identifier: chi.URLParam(r, "identifier")}
	s.query(w, func(m *app.Modules) (interface{}, error) {
		list, err := m.Incentive.Incentives(filter, "", 1)
		if err != nil {
			return nil, err
		}
		return list[0], nil
	})
}

type lpWeightResponse struct {
	LPDenom string   `json:"lp_denom"`
	EpochID uint64   `json:"epoch_id"`
	Weight  *big.Int `json:"lp_weight"`
}

func (s *Server) handleLPWeight(w http.ResponseWriter, r *http.Request) {
	denom := r.URL.Query().Get("denom")
	epochID, err := optionalUint(r, "epoch_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if denom == "" || epochID == nil {
		writeError(w, http.StatusBadRequest, errors.New("denom and epoch_id are required"))
		return
	}
	s.query(w, func(m *app.Modules) (interface{}, error) {
		weight, err := m.Incentive.LPWeight(denom, *epochID)
		if err != nil {
			return nil, err
		}
		return lpWeightResponse{LPDenom: denom, EpochID: *epochID, Weight: weight}, nil
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	var open *bool
	if raw := r.URL.Query().Get("open"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid open flag %q", raw))
			return
		}
		open = &v
	}
	addr := chi.URLParam(r, "addr")
	s.query(w, func(m *app.Modules) (interface{}, error) {
		list, err := m.Incentive.Positions(addr, open)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []*incentive.Position{}
		}
		return list, nil
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")
	s.query(w, func(m *app.Modules) (interface{}, error) { return m.Incentive.Position(id) })
}

func (s *Server) handlePositionWeight(w http.ResponseWriter, r *http.Request) {
	addr, denom := chi.URLParam(r, "addr"), r.URL.Query().Get("denom")
	epochID, err := optionalUint(r, "epoch_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if denom == "" {
		writeError(w, http.StatusBadRequest, errors.New("denom is required"))
		return
	}
	s.query(w, func(m *app.Modules) (interface{}, error) {
		at := uint64(0)
		if epochID != nil {
			at = *epochID
		} else {
			current, err := m.Epochs.CurrentEpoch()
			if err != nil {
				return nil, err
			}
			at = current.ID
		}
		return m.Incentive.Weight(addr, denom, at)
	})
}

type rewardsResponse struct {
	Bonding   types.Coins `json:"bonding"`
	Incentive types.Coins `json:"incentive"`
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	s.query(w, func(m *app.Modules) (interface{}, error) {
		bonded, err := m.Bonding.Rewards(addr)
		if err != nil {
			return nil, err
		}
		incentives, err := m.Incentive.Rewards(addr)
		if err != nil {
			return nil, err
		}
		return rewardsResponse{Bonding: bonded, Incentive: incentives}, nil
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	s.query(w, func(m *app.Modules) (interface{}, error) {
		coins, err := m.Bank.AllBalances(addr)
		if err != nil {
			return nil, err
		}
		if coins == nil {
			coins = types.Coins{}
		}
		return coins, nil
	})
}

func (s *Server) handleDispatches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.app.Dispatches().Recent(limit))
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid dispatch id: %w", err))
		return
	}
	rec, ok := s.app.Dispatches().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("dispatch not found"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleIndexedEvents(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusNotFound, errors.New("indexer disabled"))
		return
	}
	q := r.URL.Query()
	filter := indexer.Filter{Type: q.Get("type"), Key: q.Get("key"), Value: q.Get("value")}
	after, err := optionalUint(r, "after")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if after != nil {
		filter.AfterSeq = *after
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		filter.Limit = n
	}
	records, err := s.index.Events(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func optionalString(r *http.Request, key string) *string {
	if !r.URL.Query().Has(key) {
		return nil
	}
	v := r.URL.Query().Get(key)
	return &v
}

func optionalUint(r *http.Request, key string) (*uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", key, raw)
	}
	return &v, nil
}
