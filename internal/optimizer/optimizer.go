// Package optimizer sequences the stops of a single vehicle under
// time-window constraints. Solve is a pure function of the resolved travel
// matrix: no I/O, no clock reads, deterministic for a fixed input. Small
// instances are solved exactly with branch and bound; larger ones with
// greedy feasible insertion plus 2-opt improvement.
//
// Stops that cannot be scheduled are not an error. The solver keeps the
// largest feasible subset it can find and reports the remainder as
// Excluded, each with a concrete conflict reason.
package optimizer

import (
	"math"
	"sort"
	"time"

	"github.com/BearBump/RouteBox/internal/faults"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/routing"
)

// Exclusion reasons surfaced to dispatchers.
const (
	ReasonArrivalAfterWindow = "arrival after window end"
	ReasonBreaksLaterStops   = "insertion would break later time windows"
	ReasonUnreachable        = "unreachable by road"
)

const (
	// Largest stop count solved exactly. Beyond it the heuristic path runs.
	DefaultExactSearchLimit = 10

	// Orders whose costs differ by less than this fraction are considered
	// tied and broken by priority.
	DefaultTieTolerance = 0.05
)

// Stop is one visit candidate. MatrixIndex addresses the stop's row/column
// in the travel matrix; index 0 of the matrix is always the origin.
type Stop struct {
	Key         uint64
	MatrixIndex int

	WindowStart *time.Time
	WindowEnd   *time.Time

	Priority models.Priority
	Service  time.Duration
}

type Options struct {
	Mode     models.OptimizationMode
	DepartAt time.Time

	// Matrix index of the fixed end location, or -1 when the route has no
	// return leg.
	EndIndex int

	TieTolerance     float64
	ExactSearchLimit int
}

// Scheduled is a stop placed in the visiting order with its timing.
// ETA is the effective arrival: if the vehicle arrives before the window
// opens it waits, and ETA is the window start.
type Scheduled struct {
	Stop

	ETA time.Time
	ETD time.Time

	LegDistanceMeters  float64
	LegDurationSeconds float64
}

type Excluded struct {
	Stop
	Reason string
}

type Result struct {
	Order    []Scheduled
	Excluded []Excluded

	// Totals cover the full circuit including the return leg to the end
	// location when one is configured.
	TotalDistanceMeters  float64
	TotalDurationSeconds float64
}

const originIndex = 0

// Solve sequences the given stops. The returned order is a permutation of
// the feasible subset of the input; the rest comes back in Excluded.
// An empty stop list yields an empty, valid result.
func Solve(m *routing.Matrix, stops []Stop, opts Options) (*Result, error) {
	if opts.TieTolerance <= 0 {
		opts.TieTolerance = DefaultTieTolerance
	}
	if opts.ExactSearchLimit <= 0 {
		opts.ExactSearchLimit = DefaultExactSearchLimit
	}
	if !opts.Mode.Valid() {
		opts.Mode = models.OptimizeByDuration
	}

	if err := validate(m, stops, opts); err != nil {
		return nil, err
	}

	if len(stops) == 0 {
		res := &Result{Order: []Scheduled{}, Excluded: []Excluded{}}
		if opts.EndIndex >= 0 {
			res.TotalDistanceMeters = m.Distances[originIndex][opts.EndIndex]
			res.TotalDurationSeconds = m.Durations[originIndex][opts.EndIndex]
		}
		return res, nil
	}

	var seq []int
	if len(stops) <= opts.ExactSearchLimit {
		seq = solveExact(m, stops, opts)
	} else {
		seq = solveGreedy(m, stops, opts)
	}

	sched, _, ok, _ := simulate(m, stops, seq, opts)
	if !ok {
		// simulate over a sequence produced by the solver cannot fail;
		// guard against matrix inconsistencies all the same.
		return nil, faults.New(faults.DependencyUnavailable, "solver produced an infeasible order")
	}

	res := &Result{Order: sched, Excluded: []Excluded{}}
	res.TotalDistanceMeters, res.TotalDurationSeconds = totals(m, stops, seq, opts)

	in := make(map[int]bool, len(seq))
	for _, i := range seq {
		in[i] = true
	}
	for i := range stops {
		if !in[i] {
			res.Excluded = append(res.Excluded, Excluded{
				Stop:   stops[i],
				Reason: exclusionReason(m, stops, seq, i, opts),
			})
		}
	}
	return res, nil
}

func validate(m *routing.Matrix, stops []Stop, opts Options) error {
	n := len(m.Durations)
	if len(m.Distances) != n {
		return faults.New(faults.DependencyUnavailable, "matrix tables disagree: %d vs %d rows", len(m.Durations), len(m.Distances))
	}
	if opts.EndIndex >= n {
		return faults.New(faults.InfeasibleInput, "end index %d outside matrix of %d points", opts.EndIndex, n)
	}
	for _, s := range stops {
		if s.MatrixIndex <= 0 || s.MatrixIndex >= n {
			return faults.New(faults.InfeasibleInput, "stop %d has matrix index %d outside matrix of %d points", s.Key, s.MatrixIndex, n)
		}
		if s.Service < 0 {
			return faults.New(faults.InfeasibleInput, "stop %d has negative service time", s.Key)
		}
		if s.WindowStart != nil && s.WindowEnd != nil && s.WindowEnd.Before(*s.WindowStart) {
			return faults.New(faults.InfeasibleInput, "stop %d window ends before it starts", s.Key)
		}
	}
	return nil
}

// legCost is the objective contribution of one leg under the selected mode.
func legCost(m *routing.Matrix, mode models.OptimizationMode, from, to int) float64 {
	if mode == models.OptimizeByDistance {
		return m.Distances[from][to]
	}
	return m.Durations[from][to]
}

// visit computes the timing of arriving at stop s from matrix index cur at
// time t. ok is false when the stop cannot be reached inside its window.
func visit(m *routing.Matrix, s Stop, cur int, t time.Time) (eta, etd time.Time, ok bool) {
	travel := m.Durations[cur][s.MatrixIndex]
	if math.IsInf(travel, 1) {
		return time.Time{}, time.Time{}, false
	}
	arr := t.Add(time.Duration(travel * float64(time.Second)))
	if s.WindowEnd != nil && arr.After(*s.WindowEnd) {
		return time.Time{}, time.Time{}, false
	}
	eta = arr
	if s.WindowStart != nil && arr.Before(*s.WindowStart) {
		eta = *s.WindowStart
	}
	return eta, eta.Add(s.Service), true
}

// simulate walks a candidate sequence and returns the schedule. failAt is
// the position of the first infeasible stop when ok is false.
func simulate(m *routing.Matrix, stops []Stop, seq []int, opts Options) (sched []Scheduled, cost float64, ok bool, failAt int) {
	cur := originIndex
	t := opts.DepartAt
	sched = make([]Scheduled, 0, len(seq))

	for pos, i := range seq {
		s := stops[i]
		eta, etd, feasible := visit(m, s, cur, t)
		if !feasible {
			return nil, 0, false, pos
		}
		cost += legCost(m, opts.Mode, cur, s.MatrixIndex)
		sched = append(sched, Scheduled{
			Stop:               s,
			ETA:                eta,
			ETD:                etd,
			LegDistanceMeters:  m.Distances[cur][s.MatrixIndex],
			LegDurationSeconds: m.Durations[cur][s.MatrixIndex],
		})
		cur = s.MatrixIndex
		t = etd
	}

	if opts.EndIndex >= 0 {
		cost += legCost(m, opts.Mode, cur, opts.EndIndex)
	}
	return sched, cost, true, -1
}

func totals(m *routing.Matrix, stops []Stop, seq []int, opts Options) (distance, duration float64) {
	cur := originIndex
	t := opts.DepartAt
	for _, i := range seq {
		s := stops[i]
		_, etd, _ := visit(m, s, cur, t)
		distance += m.Distances[cur][s.MatrixIndex]
		cur = s.MatrixIndex
		t = etd
	}
	duration = t.Sub(opts.DepartAt).Seconds()
	if opts.EndIndex >= 0 {
		distance += m.Distances[cur][opts.EndIndex]
		duration += m.Durations[cur][opts.EndIndex]
	}
	return distance, duration
}

// candidate comparison: more stops wins; on equal count, costs within the
// tie tolerance are broken by priority sequence (higher priority earlier),
// then by stop order for determinism.
type candidate struct {
	seq  []int
	cost float64
}

func better(a candidate, b *candidate, stops []Stop, tol float64) bool {
	if b == nil {
		return true
	}
	if len(a.seq) != len(b.seq) {
		return len(a.seq) > len(b.seq)
	}
	lo := math.Min(a.cost, b.cost)
	tied := math.Abs(a.cost-b.cost) <= tol*lo
	if !tied {
		return a.cost < b.cost
	}
	for k := range a.seq {
		ra, rb := stops[a.seq[k]].Priority.Rank(), stops[b.seq[k]].Priority.Rank()
		if ra != rb {
			return ra < rb
		}
	}
	for k := range a.seq {
		if a.seq[k] != b.seq[k] {
			return a.seq[k] < b.seq[k]
		}
	}
	return false
}

func solveExact(m *routing.Matrix, stops []Stop, opts Options) []int {
	var best *candidate

	consider := func(seq []int, cost float64) {
		c := candidate{seq: append([]int(nil), seq...), cost: cost}
		if opts.EndIndex >= 0 {
			cur := originIndex
			if len(seq) > 0 {
				cur = stops[seq[len(seq)-1]].MatrixIndex
			}
			c.cost += legCost(m, opts.Mode, cur, opts.EndIndex)
		}
		if math.IsInf(c.cost, 1) {
			return
		}
		if better(c, best, stops, opts.TieTolerance) {
			best = &c
		}
	}

	var dfs func(cur int, t time.Time, visited []bool, seq []int, cost float64, left int)
	dfs = func(cur int, t time.Time, visited []bool, seq []int, cost float64, left int) {
		consider(seq, cost)

		if best != nil {
			// Cannot beat the best on count: prune when cost is already
			// beyond the tie tolerance.
			bound := len(seq) + left
			if bound < len(best.seq) {
				return
			}
			if bound == len(best.seq) && cost > best.cost*(1+opts.TieTolerance) {
				return
			}
		}

		for i := range stops {
			if visited[i] {
				continue
			}
			_, etd, ok := visit(m, stops[i], cur, t)
			if !ok {
				continue
			}
			visited[i] = true
			dfs(stops[i].MatrixIndex, etd, visited, append(seq, i),
				cost+legCost(m, opts.Mode, cur, stops[i].MatrixIndex), left-1)
			visited[i] = false
		}
	}

	dfs(originIndex, opts.DepartAt, make([]bool, len(stops)), make([]int, 0, len(stops)), 0, len(stops))
	if best == nil {
		return nil
	}
	return best.seq
}

func solveGreedy(m *routing.Matrix, stops []Stop, opts Options) []int {
	remaining := make([]int, len(stops))
	for i := range stops {
		remaining[i] = i
	}

	var seq []int
	cur := originIndex
	t := opts.DepartAt

	for len(remaining) > 0 {
		bestCost := math.Inf(1)
		feasible := make([]int, 0, len(remaining))
		costs := make(map[int]float64, len(remaining))
		for _, i := range remaining {
			if _, _, ok := visit(m, stops[i], cur, t); !ok {
				continue
			}
			c := legCost(m, opts.Mode, cur, stops[i].MatrixIndex)
			feasible = append(feasible, i)
			costs[i] = c
			if c < bestCost {
				bestCost = c
			}
		}
		if len(feasible) == 0 {
			break
		}

		// Within the tolerance band the highest priority goes first.
		pick := -1
		for _, i := range feasible {
			if costs[i] > bestCost*(1+opts.TieTolerance) {
				continue
			}
			if pick == -1 || stops[i].Priority.Rank() < stops[pick].Priority.Rank() {
				pick = i
			}
		}

		_, etd, _ := visit(m, stops[pick], cur, t)
		seq = append(seq, pick)
		cur = stops[pick].MatrixIndex
		t = etd
		remaining = remove(remaining, pick)
	}

	seq = repairInsert(m, stops, seq, remaining, opts)
	seq = twoOpt(m, stops, seq, opts)
	return seq
}

// repairInsert tries to place every unscheduled stop at its cheapest
// feasible position; repeats until nothing more fits.
func repairInsert(m *routing.Matrix, stops []Stop, seq []int, skipped []int, opts Options) []int {
	skipped = append([]int(nil), skipped...)
	sort.Ints(skipped)

	for {
		inserted := false
		for k := 0; k < len(skipped); k++ {
			i := skipped[k]
			bestPos, bestCost := -1, math.Inf(1)
			for pos := 0; pos <= len(seq); pos++ {
				trial := insertAt(seq, pos, i)
				if _, cost, ok, _ := simulate(m, stops, trial, opts); ok && cost < bestCost {
					bestPos, bestCost = pos, cost
				}
			}
			if bestPos >= 0 {
				seq = insertAt(seq, bestPos, i)
				skipped = append(skipped[:k], skipped[k+1:]...)
				inserted = true
				k--
			}
		}
		if !inserted {
			return seq
		}
	}
}

// twoOpt reverses segments while that strictly lowers cost and keeps every
// window satisfied.
func twoOpt(m *routing.Matrix, stops []Stop, seq []int, opts Options) []int {
	if len(seq) < 3 {
		return seq
	}
	_, cost, ok, _ := simulate(m, stops, seq, opts)
	if !ok {
		return seq
	}

	const maxPasses = 25
	for pass := 0; pass < maxPasses; pass++ {
		improved := false
		for i := 0; i < len(seq)-1; i++ {
			for j := i + 1; j < len(seq); j++ {
				trial := append([]int(nil), seq...)
				reverse(trial[i : j+1])
				if _, c, ok, _ := simulate(m, stops, trial, opts); ok && c < cost-1e-9 {
					seq, cost = trial, c
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return seq
}

// exclusionReason diagnoses why stop i could not join the final order by
// probing every insertion position.
func exclusionReason(m *routing.Matrix, stops []Stop, seq []int, i int, opts Options) string {
	reachable := false
	fitsButBreaksLater := false

	for pos := 0; pos <= len(seq); pos++ {
		trial := insertAt(seq, pos, i)
		_, _, ok, failAt := simulate(m, stops, trial, opts)
		if ok {
			// Inserting is feasible but the solver preferred a larger or
			// cheaper subset; report the window conflict of the tightest
			// alternative.
			fitsButBreaksLater = true
			continue
		}
		if failAt > pos {
			fitsButBreaksLater = true
		}
		if failAt == pos {
			cur := originIndex
			if pos > 0 {
				cur = stops[trial[pos-1]].MatrixIndex
			}
			if !math.IsInf(m.Durations[cur][stops[i].MatrixIndex], 1) {
				reachable = true
			}
		}
	}

	if fitsButBreaksLater {
		return ReasonBreaksLaterStops
	}
	if reachable {
		return ReasonArrivalAfterWindow
	}
	return ReasonUnreachable
}

func insertAt(seq []int, pos, v int) []int {
	out := make([]int, 0, len(seq)+1)
	out = append(out, seq[:pos]...)
	out = append(out, v)
	out = append(out, seq[pos:]...)
	return out
}

func remove(xs []int, v int) []int {
	out := xs[:0]
	for _, x := range xs {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func reverse(xs []int) {
	for a, b := 0, len(xs)-1; a < b; a, b = a+1, b-1 {
		xs[a], xs[b] = xs[b], xs[a]
	}
}
