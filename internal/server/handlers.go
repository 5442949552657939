package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"rewardengine/internal/coordinator"
	"rewardengine/internal/emission"
	"rewardengine/internal/fee"
	"rewardengine/internal/ledger"
	"rewardengine/internal/oracle"
	"rewardengine/internal/projection"
	"rewardengine/internal/registry"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
)

const (
	maxEventBody      = 1 << 20
	defaultClaimLimit = 50
	maxClaimLimit     = 500
)

// catalog indexes the curves and fee schedules the API can evaluate.
type catalog struct {
	curves map[string]*emission.Curve
	fees   map[string]*fee.Schedule
}

// newCatalog collects curves and fees from every configured ledger. Ledger
// curves win over extra curves of the same name since they carry the
// deployed start unit.
func newCatalog(c *coordinator.Coordinator, extra []*emission.Curve) *catalog {
	cat := &catalog{
		curves: make(map[string]*emission.Curve),
		fees:   make(map[string]*fee.Schedule),
	}
	for _, curve := range extra {
		cat.curves[curve.Name()] = curve
	}
	addFee := func(s *fee.Schedule) {
		if s != nil {
			cat.fees[s.Name()] = s
		}
	}
	for _, e := range c.Registry().Versions() {
		cat.curves[e.Ledger.Curve().Name()] = e.Ledger.Curve()
		addFee(e.Ledger.FeeSchedule())
	}
	if s := c.Staking(); s != nil {
		cat.curves[s.Curve().Name()] = s.Curve()
		addFee(s.FeeSchedule())
	}
	if v := c.Vesting(); v != nil {
		addFee(v.FeeSchedule())
	}
	return cat
}

func (c *catalog) curveNames() []string {
	names := make([]string, 0, len(c.curves))
	for n := range c.curves {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *catalog) feeNames() []string {
	names := make([]string, 0, len(c.fees))
	for n := range c.fees {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type api struct {
	deps    *Deps
	catalog *catalog
}

func (a *api) register(mux *runtime.ServeMux) error {
	routes := []struct {
		method, pattern string
		handler         runtime.HandlerFunc
	}{
		{http.MethodGet, "/v1/curves", a.listCatalog},
		{http.MethodGet, "/v1/curves/{name}/emitted", a.curveEmitted},
		{http.MethodGet, "/v1/fees/{name}", a.feeAt},
		{http.MethodGet, "/v1/versions", a.versions},
		{http.MethodGet, "/v1/rewards/{version}/accounts/{account}", a.rewardAccount},
		{http.MethodGet, "/v1/staking/accounts/{account}", a.stakingAccount},
		{http.MethodGet, "/v1/vesting/accounts/{account}", a.vestingAccount},
		{http.MethodGet, "/v1/claims/accounts/{account}", a.claimHistory},
		{http.MethodGet, "/v1/balances/accounts/{account}", a.paidBalances},
		{http.MethodGet, "/v1/journals/accounts/{account}", a.journals},
		{http.MethodPost, "/v1/events/{event_type}", a.submitEvent},
		{http.MethodGet, "/v1/admin/integrity", a.verifyIntegrity},
		{http.MethodGet, "/v1/admin/event-log", a.eventLogInfo},
		{http.MethodPost, "/v1/admin/projections/rebuild", a.rebuildProjections},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, a.instrument(r.pattern, r.handler)); err != nil {
			return fmt.Errorf("%s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument records request count, latency and error codes per route.
func (a *api) instrument(endpoint string, h runtime.HandlerFunc) runtime.HandlerFunc {
	m := a.deps.Metrics
	if m == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r, params)

		status := strconv.Itoa(sw.status)
		m.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		m.QueryRequests.WithLabelValues(endpoint, status).Inc()
		if sw.status >= http.StatusBadRequest {
			m.QueryErrors.WithLabelValues(endpoint, status).Inc()
		}
	}
}

// ============================================================================
// Curves and fees
// ============================================================================

func (a *api) listCatalog(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"curves": a.catalog.curveNames(),
		"fees":   a.catalog.feeNames(),
	})
}

type curveView struct {
	Curve       string      `json:"curve"`
	Unit        uint64      `json:"unit"`
	StartUnit   uint64      `json:"start_unit"`
	EndUnit     uint64      `json:"end_unit"`
	TotalSupply sdkmath.Int `json:"total_supply"`
	Emitted     sdkmath.Int `json:"emitted"`
}

func (a *api) curveEmitted(w http.ResponseWriter, r *http.Request, params map[string]string) {
	curve, ok := a.catalog.curves[params["name"]]
	if !ok {
		writeError(w, codes.NotFound, fmt.Sprintf("unknown curve %q", params["name"]))
		return
	}
	unit, err := requiredUnit(r)
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	emitted, err := curve.CumulativeEmitted(unit)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, curveView{
		Curve:       curve.Name(),
		Unit:        unit,
		StartUnit:   curve.StartUnit(),
		EndUnit:     curve.EndUnit(),
		TotalSupply: curve.TotalSupply(),
		Emitted:     emitted,
	})
}

type feeView struct {
	Schedule   string            `json:"schedule"`
	Unit       uint64            `json:"unit"`
	StartUnit  uint64            `json:"start_unit"`
	EndUnit    uint64            `json:"end_unit"`
	InitialFee sdkmath.Int       `json:"initial_fee"`
	Fraction   sdkmath.LegacyDec `json:"fraction"`
	Amount     *sdkmath.Int      `json:"amount,omitempty"`
	Net        *sdkmath.Int      `json:"net,omitempty"`
	Fee        *sdkmath.Int      `json:"fee,omitempty"`
}

// feeAt evaluates a schedule at unit; with ?amount= it also splits that
// amount into net and fee.
func (a *api) feeAt(w http.ResponseWriter, r *http.Request, params map[string]string) {
	schedule, ok := a.catalog.fees[params["name"]]
	if !ok {
		writeError(w, codes.NotFound, fmt.Sprintf("unknown fee schedule %q", params["name"]))
		return
	}
	unit, err := requiredUnit(r)
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	view := feeView{
		Schedule:   schedule.Name(),
		Unit:       unit,
		StartUnit:  schedule.StartUnit(),
		EndUnit:    schedule.EndUnit(),
		InitialFee: schedule.InitialFee(),
		Fraction:   schedule.FractionDec(unit),
	}
	if s := r.URL.Query().Get("amount"); s != "" {
		amount, ok := sdkmath.NewIntFromString(s)
		if !ok || amount.IsNegative() {
			writeError(w, codes.InvalidArgument, fmt.Sprintf("invalid amount %q", s))
			return
		}
		net, feeAmount, err := schedule.Apply(amount, unit)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		view.Amount, view.Net, view.Fee = &amount, &net, &feeAmount
	}
	writeJSON(w, http.StatusOK, view)
}

// ============================================================================
// Ledgers
// ============================================================================

type versionView struct {
	Version        string   `json:"version"`
	Curve          string   `json:"curve"`
	Fee            string   `json:"fee,omitempty"`
	Active         bool     `json:"active"`
	Frozen         bool     `json:"frozen"`
	LastUpdateUnit uint64   `json:"last_update_unit"`
	Pools          []string `json:"pools"`
}

func (a *api) versions(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	reg := a.deps.Coordinator.Registry()
	var active string
	if e, err := reg.Active(); err == nil {
		active = e.Version
	}
	out := make([]versionView, 0)
	for _, e := range reg.Versions() {
		v := versionView{
			Version:        e.Version,
			Curve:          e.Ledger.Curve().Name(),
			Active:         e.Version == active,
			Frozen:         e.Ledger.Frozen(),
			LastUpdateUnit: e.Ledger.LastUpdateUnit(),
			Pools:          e.Ledger.PoolIDs(),
		}
		if s := e.Ledger.FeeSchedule(); s != nil {
			v.Fee = s.Name()
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": out})
}

type rewardAccountView struct {
	Version   string                 `json:"version"`
	Account   uuid.UUID              `json:"account"`
	Unit      uint64                 `json:"unit"`
	Unclaimed sdkmath.Int            `json:"unclaimed"`
	Claimed   sdkmath.Int            `json:"claimed"`
	Shares    map[string]sdkmath.Int `json:"shares"`
	Frozen    bool                   `json:"frozen"`
}

// rewardAccount reports an account on one ledger version. Without ?unit=
// the ledger is read at its last settlement, which needs no oracle.
func (a *api) rewardAccount(w http.ResponseWriter, r *http.Request, params map[string]string) {
	l, err := a.deps.Coordinator.Registry().Get(params["version"])
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	account, err := parseAccount(params["account"])
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	unit, err := optionalUnit(r, l.LastUpdateUnit())
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	unclaimed, err := l.GetUnclaimed(account, unit)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	shares := make(map[string]sdkmath.Int)
	for _, pool := range l.PoolIDs() {
		shares[pool] = l.Shares(account, pool)
	}
	writeJSON(w, http.StatusOK, rewardAccountView{
		Version:   params["version"],
		Account:   account,
		Unit:      unit,
		Unclaimed: unclaimed,
		Claimed:   l.Claimed(account),
		Shares:    shares,
		Frozen:    l.Frozen(),
	})
}

type stakingAccountView struct {
	Account   uuid.UUID   `json:"account"`
	Unit      uint64      `json:"unit"`
	Staked    sdkmath.Int `json:"staked"`
	Unclaimed sdkmath.Int `json:"unclaimed"`
	Claimed   sdkmath.Int `json:"claimed"`
}

func (a *api) stakingAccount(w http.ResponseWriter, r *http.Request, params map[string]string) {
	l := a.deps.Coordinator.Staking()
	if l == nil {
		writeError(w, codes.Unimplemented, "staking is not configured")
		return
	}
	account, err := parseAccount(params["account"])
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	unit, err := optionalUnit(r, l.LastUpdateUnit())
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	unclaimed, err := l.GetUnclaimed(account, unit)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stakingAccountView{
		Account:   account,
		Unit:      unit,
		Staked:    l.StakedBalance(account),
		Unclaimed: unclaimed,
		Claimed:   l.Claimed(account),
	})
}

type vestingAccountView struct {
	Account   uuid.UUID   `json:"account"`
	Unit      uint64      `json:"unit"`
	Total     sdkmath.Int `json:"total"`
	Claimed   sdkmath.Int `json:"claimed"`
	Unclaimed sdkmath.Int `json:"unclaimed"`
}

// vestingAccount runs on unix time; without ?unit= it reads at the clock.
func (a *api) vestingAccount(w http.ResponseWriter, r *http.Request, params map[string]string) {
	l := a.deps.Coordinator.Vesting()
	if l == nil {
		writeError(w, codes.Unimplemented, "vesting is not configured")
		return
	}
	account, err := parseAccount(params["account"])
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	unit, err := optionalUnit(r, uint64(a.deps.Clock().Unix()))
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	unclaimed, err := l.GetUnclaimed(account, unit)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	total, claimed := l.Allocation(account)
	writeJSON(w, http.StatusOK, vestingAccountView{
		Account:   account,
		Unit:      unit,
		Total:     total,
		Claimed:   claimed,
		Unclaimed: unclaimed,
	})
}

// ============================================================================
// History and projections
// ============================================================================

func (a *api) claimHistory(w http.ResponseWriter, r *http.Request, params map[string]string) {
	account, err := parseAccount(params["account"])
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	limit, err := pageSize(r)
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	claims, err := a.deps.Recorder.ClaimsByAccount(account, limit)
	if err != nil {
		writeError(w, codes.Internal, fmt.Sprintf("claim history: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": account, "claims": nonNil(claims)})
}

func (a *api) paidBalances(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if a.deps.Query == nil {
		writeError(w, codes.Unimplemented, "projections are not configured")
		return
	}
	account, err := parseAccount(params["account"])
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	balances, err := a.deps.Query.GetAccountBalances(r.Context(), account)
	if err != nil {
		writeError(w, codes.Internal, fmt.Sprintf("get balances: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (a *api) journals(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if a.deps.Query == nil {
		writeError(w, codes.Unimplemented, "projections are not configured")
		return
	}
	account, err := parseAccount(params["account"])
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	limit, err := pageSize(r)
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	var before *int64
	if s := r.URL.Query().Get("before_sequence"); s != "" {
		seq, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, codes.InvalidArgument, fmt.Sprintf("invalid before_sequence %q", s))
			return
		}
		before = &seq
	}
	entries, err := a.deps.Query.GetJournalHistory(r.Context(), account, limit, before)
	if err != nil {
		writeError(w, codes.Internal, fmt.Sprintf("get journals: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": account, "journals": nonNil(entries)})
}

// ============================================================================
// Ingest and admin
// ============================================================================

func (a *api) submitEvent(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if a.deps.Injector == nil {
		writeError(w, codes.Unimplemented, "event injection is disabled")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		writeError(w, codes.InvalidArgument, fmt.Sprintf("read body: %v", err))
		return
	}
	if err := a.deps.Injector.Inject(r.Context(), params["event_type"], body); err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, codes.DeadlineExceeded, err.Error())
		case errors.Is(err, context.Canceled):
			writeError(w, codes.Canceled, err.Error())
		default:
			writeError(w, codes.InvalidArgument, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (a *api) verifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if a.deps.Query == nil {
		writeError(w, codes.Unimplemented, "projections are not configured")
		return
	}
	report, err := a.deps.Query.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, codes.Internal, fmt.Sprintf("verify integrity: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *api) eventLogInfo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if a.deps.SnapshotMgr == nil {
		writeError(w, codes.Unimplemented, "event log is not configured")
		return
	}
	latest, err := a.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, codes.Internal, fmt.Sprintf("get latest sequence: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"last_sequence": latest})
}

func (a *api) rebuildProjections(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if a.deps.DB == nil {
		writeError(w, codes.Unimplemented, "projections are not configured")
		return
	}
	if err := projection.RebuildProjections(r.Context(), a.deps.DB, a.deps.Logger); err != nil {
		writeError(w, codes.Internal, fmt.Sprintf("rebuild failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rebuilt": true})
}

// ============================================================================
// Helpers
// ============================================================================

func parseAccount(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid account %q: %v", s, err)
	}
	return id, nil
}

func requiredUnit(r *http.Request) (uint64, error) {
	s := r.URL.Query().Get("unit")
	if s == "" {
		return 0, errors.New("unit is required")
	}
	return parseUnit(s)
}

func optionalUnit(r *http.Request, fallback uint64) (uint64, error) {
	s := r.URL.Query().Get("unit")
	if s == "" {
		return fallback, nil
	}
	return parseUnit(s)
}

func parseUnit(s string) (uint64, error) {
	unit, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid unit %q", s)
	}
	return unit, nil
}

func pageSize(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultClaimLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", s)
	}
	if n > maxClaimLimit {
		n = maxClaimLimit
	}
	return n, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// codeFor maps the ledger error taxonomy onto gRPC codes.
func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, registry.ErrUnknownVersion), errors.Is(err, ledger.ErrUnknownPool):
		return codes.NotFound
	case errors.Is(err, oracle.ErrOracleUnavailable):
		return codes.Unavailable
	case errors.Is(err, ledger.ErrInvalidAmount):
		return codes.InvalidArgument
	case errors.Is(err, ledger.ErrArithmeticOverflow):
		return codes.OutOfRange
	default:
		return codes.Internal
	}
}

func writeLedgerError(w http.ResponseWriter, err error) {
	writeError(w, codeFor(err), err.Error())
}

// writeError writes the same {code, message} body the gateway uses for its
// own routing errors.
func writeError(w http.ResponseWriter, code codes.Code, msg string) {
	writeJSON(w, runtime.HTTPStatusFromCode(code), map[string]interface{}{
		"code":    int32(code),
		"message": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
