package solver

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/chazu/ik/pkg/subtree"
	"github.com/chazu/ik/pkg/transform"
	"github.com/chazu/ik/pkg/tree"
	"github.com/chazu/ik/pkg/vmath"
)

var (
	ErrNotReady = errors.New("solver not ready")
	ErrNilRoot  = errors.New("nil root node")
)

// State is a solver's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Observer is notified after every solve.
type Observer interface {
	ObserveSolve(algorithm string, res Result, took time.Duration)
}

// Option configures a Solver.
type Option func(*Solver)

// WithConfig sets the initial config.
func WithConfig(cfg Config) Option {
	return func(s *Solver) { s.cfg = cfg }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Solver) { s.log = l }
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(s *Solver) { s.observers = append(s.observers, o) }
}

// Solver drives one algorithm over every subtree of a node tree.
//
// A Solver does not own the tree. After any change to the tree's topology
// or effector set the caller must call Rebuild before solving again; after
// changing translations it must call UpdateTranslations. A Solver and its
// tree must not be used from several goroutines at once.
type Solver struct {
	desc      Descriptor
	root      *tree.Node
	cfg       Config
	log       *slog.Logger
	observers []Observer

	subtrees []*subtree.Subtree
	algos    []Algorithm
	state    State
}

// New looks up the named algorithm, binds it to root and rebuilds, leaving
// the solver ready to solve.
func New(reg *Registry, root *tree.Node, name string, opts ...Option) (*Solver, error) {
	if reg == nil {
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "%q: no registry", name)
	}
	desc, err := reg.Lookup(name)
	if err != nil {
		return nil, err
	}

	s := &Solver{desc: desc, cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("algorithm", desc.Name)
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.Rebuild(root); err != nil {
		return nil, err
	}
	return s, nil
}

// Rebuild partitions the tree under root and creates one algorithm instance
// per subtree. Segment lengths are taken from the tree's current pose.
func (s *Solver) Rebuild(root *tree.Node) error {
	if s.state == StateClosed {
		return ErrNotReady
	}
	if root == nil {
		return ErrNilRoot
	}
	s.release()
	s.root = root
	s.subtrees = subtree.Partition(root)

	global := s.globalPositions()
	algos := make([]Algorithm, 0, len(s.subtrees))
	for i, st := range s.subtrees {
		st.UpdateLengths(global)
		a, err := s.desc.New()
		if err == nil {
			err = a.Rebuild(st)
			if err != nil {
				a.Close()
			}
		}
		if err != nil {
			for _, done := range algos {
				done.Close()
			}
			s.subtrees = nil
			return errors.Wrapf(err, "rebuild subtree %d (base %s)", i, st.Base.ID.Short())
		}
		algos = append(algos, a)
	}
	s.algos = algos
	s.state = StateReady

	s.log.Debug("rebuilt solver",
		"root", root.ID.Short(),
		"subtrees", len(s.subtrees),
		"effectors", len(tree.Effectors(root)))
	return nil
}

// UpdateTranslations refreshes cached segment lengths from the tree's
// current translations without repartitioning.
func (s *Solver) UpdateTranslations() {
	if s.state != StateReady {
		return
	}
	global := s.globalPositions()
	for i, st := range s.subtrees {
		st.UpdateLengths(global)
		s.algos[i].UpdateTranslations()
	}
}

func (s *Solver) globalPositions() func(*tree.Node) vmath.Vec3 {
	if s.cfg.Space == SpaceGlobal {
		return func(n *tree.Node) vmath.Vec3 { return n.Position }
	}
	poses := transform.GlobalPoses(s.root)
	return func(n *tree.Node) vmath.Vec3 { return poses[n].Position }
}

// Solve runs every subtree's algorithm once and writes the result back into
// the tree in the configured space.
func (s *Solver) Solve() (Result, error) {
	if s.state != StateReady {
		return Result{}, ErrNotReady
	}
	start := time.Now()
	cfg := s.cfg

	if cfg.Space == SpaceGlobal {
		transform.Apply(s.root, transform.GlobalToLocal, transform.Both)
	}
	locals := make(map[*tree.Node]transform.Pose)
	for n := range tree.PreOrder(s.root) {
		locals[n] = transform.Pose{Position: n.Position, Rotation: n.Rotation}
	}
	transform.Apply(s.root, transform.LocalToGlobal, transform.Both)

	res := Result{Status: Converged, Subtrees: make([]Outcome, 0, len(s.algos))}
	solved := make(map[*tree.Node]bool)
	for i, st := range s.subtrees {
		if len(solved) > 0 {
			s.follow(locals, solved)
		}
		out := s.algos[i].Solve(cfg)
		res.Subtrees = append(res.Subtrees, out)
		if out.Status != Converged {
			res.Status = out.Status
		}
		res.Iterations = max(res.Iterations, out.Iterations)
		for _, n := range st.Nodes {
			solved[n] = true
		}
	}
	if len(solved) > 0 {
		s.follow(locals, solved)
	}

	if cfg.Space == SpaceLocal {
		transform.Apply(s.root, transform.GlobalToLocal, transform.Both)
	}

	took := time.Since(start)
	s.log.Debug("solved",
		"status", res.Status,
		"iterations", res.Iterations,
		"subtrees", len(res.Subtrees),
		"took", took)
	for _, o := range s.observers {
		o.ObserveSolve(s.desc.Name, res, took)
	}
	return res, nil
}

// follow recomputes the global pose of every node no subtree has solved
// yet from its recorded local pose, so it moves rigidly with its parent.
func (s *Solver) follow(locals map[*tree.Node]transform.Pose, solved map[*tree.Node]bool) {
	for n := range tree.PreOrder(s.root) {
		if n == s.root || solved[n] {
			continue
		}
		p := n.Parent()
		g := transform.Compose(transform.Pose{Position: p.Position, Rotation: p.Rotation}, locals[n])
		n.Position, n.Rotation = g.Position, g.Rotation
	}
}

// IterateNodes calls fn once for every node positioned by a subtree, with
// the pose as currently stored in the tree.
func (s *Solver) IterateNodes(fn NodeFunc) {
	for _, a := range s.algos {
		a.IterateNodes(fn)
	}
}

// Subtrees returns the current partition in solve order.
func (s *Solver) Subtrees() []*subtree.Subtree {
	return append([]*subtree.Subtree(nil), s.subtrees...)
}

func (s *Solver) State() State      { return s.state }
func (s *Solver) Config() Config    { return s.cfg }
func (s *Solver) Algorithm() string { return s.desc.Name }

// SetConfig replaces the config. It takes effect on the next solve.
func (s *Solver) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

// Close releases every algorithm instance. The solver cannot be used
// afterwards; the tree is left as is.
func (s *Solver) Close() {
	s.release()
	s.state = StateClosed
}

func (s *Solver) release() {
	for _, a := range s.algos {
		a.Close()
	}
	s.algos = nil
	s.subtrees = nil
	if s.state == StateReady {
		s.state = StateIdle
	}
}
