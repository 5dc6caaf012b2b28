package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// HandleConfig fixes the per-process engine settings. Handles are configured
// once at creation: small hash and a single search thread each, so the pool
// gets its concurrency from many small engines rather than one large one.
type HandleConfig struct {
	Path    string
	Args    []string
	HashMB  int
	Threads int
}

// Handle is one long-lived engine process with exclusive-use semantics.
// The pool guarantees a handle is never shared between concurrent leases.
type Handle struct {
	id  int
	cfg HandleConfig

	cmd   *exec.Cmd
	stdin *bufio.Writer
	out   chan string

	createdAt time.Time
	lastUsed  time.Time
	faulted   bool

	curMultiPV int
	curSkill   int
}

const initTimeout = 10 * time.Second

// newHandle spawns and initializes an engine process.
func newHandle(id int, cfg HandleConfig) (*Handle, error) {
	cmd := exec.Command(cfg.Path, cfg.Args...)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}

	h := &Handle{
		id:         id,
		cfg:        cfg,
		cmd:        cmd,
		stdin:      bufio.NewWriter(stdinPipe),
		out:        make(chan string, 256),
		createdAt:  time.Now(),
		lastUsed:   time.Now(),
		curMultiPV: 1,
		curSkill:   20,
	}
	go h.readLines(stdoutPipe)

	if err := h.initialize(); err != nil {
		h.kill()
		return nil, err
	}
	return h, nil
}

func (h *Handle) readLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		h.out <- scanner.Text()
	}
	close(h.out)
}

func (h *Handle) initialize() error {
	if err := h.send("uci"); err != nil {
		return err
	}
	if err := h.waitFor("uciok", initTimeout); err != nil {
		return err
	}
	if h.cfg.HashMB > 0 {
		if err := h.send(fmt.Sprintf("setoption name Hash value %d", h.cfg.HashMB)); err != nil {
			return err
		}
	}
	threads := h.cfg.Threads
	if threads <= 0 {
		threads = 1
	}
	if err := h.send(fmt.Sprintf("setoption name Threads value %d", threads)); err != nil {
		return err
	}
	if err := h.send("setoption name Ponder value false"); err != nil {
		return err
	}
	return h.sync()
}

// sync round-trips isready/readyok so option changes are applied.
func (h *Handle) sync() error {
	if err := h.send("isready"); err != nil {
		return err
	}
	return h.waitFor("readyok", initTimeout)
}

func (h *Handle) send(cmd string) error {
	if _, err := h.stdin.WriteString(cmd + "\n"); err != nil {
		h.faulted = true
		return fmt.Errorf("%w: write %q: %v", ErrEngineFault, cmd, err)
	}
	if err := h.stdin.Flush(); err != nil {
		h.faulted = true
		return fmt.Errorf("%w: flush: %v", ErrEngineFault, err)
	}
	return nil
}

func (h *Handle) waitFor(token string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-h.out:
			if !ok {
				h.faulted = true
				return fmt.Errorf("%w: engine closed output", ErrEngineFault)
			}
			if strings.HasPrefix(line, token) {
				return nil
			}
		case <-deadline.C:
			h.faulted = true
			return fmt.Errorf("%w: waiting for %q", ErrEngineFault, token)
		}
	}
}

// Evaluate runs one budgeted search. The engine stops at target depth or the
// soft time cap, whichever comes first; past the hard ceiling the process is
// killed and ErrHardTimeout returned.
func (h *Handle) Evaluate(ctx context.Context, fen string, b Budget) (*Evaluation, error) {
	if h.faulted {
		return nil, fmt.Errorf("%w: handle already faulted", ErrEngineFault)
	}

	multiPV := b.MultiPV
	if multiPV < 1 {
		multiPV = 1
	}
	skill := b.Skill
	if skill <= 0 || skill > 20 {
		skill = 20
	}
	if multiPV != h.curMultiPV {
		if err := h.send(fmt.Sprintf("setoption name MultiPV value %d", multiPV)); err != nil {
			return nil, err
		}
		h.curMultiPV = multiPV
	}
	if skill != h.curSkill {
		if err := h.send(fmt.Sprintf("setoption name Skill Level value %d", skill)); err != nil {
			return nil, err
		}
		h.curSkill = skill
	}

	if err := h.send("position fen " + fen); err != nil {
		return nil, err
	}

	goCmd := "go"
	if b.Depth > 0 {
		goCmd += fmt.Sprintf(" depth %d", b.Depth)
	}
	if b.MoveTime > 0 {
		goCmd += fmt.Sprintf(" movetime %d", b.MoveTime.Milliseconds())
	}
	if err := h.send(goCmd); err != nil {
		return nil, err
	}

	deadline := time.NewTimer(b.hardDeadline())
	defer deadline.Stop()

	lines := make(map[int]Line)
	for {
		select {
		case <-ctx.Done():
			h.kill()
			return nil, ctx.Err()
		case <-deadline.C:
			h.kill()
			return nil, fmt.Errorf("%w: %s", ErrHardTimeout, goCmd)
		case line, ok := <-h.out:
			if !ok {
				h.faulted = true
				return nil, fmt.Errorf("%w: engine died mid-search", ErrEngineFault)
			}
			if strings.HasPrefix(line, "info ") {
				if mpv, ln, ok := parseInfo(line); ok {
					if prev, seen := lines[mpv]; !seen || ln.Depth >= prev.Depth {
						lines[mpv] = ln
					}
				}
				continue
			}
			if strings.HasPrefix(line, "bestmove") {
				h.lastUsed = time.Now()
				return buildEvaluation(line, lines, multiPV)
			}
		}
	}
}

func buildEvaluation(bestmoveLine string, byRank map[int]Line, multiPV int) (*Evaluation, error) {
	ranks := make([]int, 0, len(byRank))
	for r := range byRank {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)

	ev := &Evaluation{Lines: make([]Line, 0, len(ranks))}
	for _, r := range ranks {
		if r > multiPV {
			break
		}
		ev.Lines = append(ev.Lines, byRank[r])
	}
	if len(ev.Lines) == 0 {
		return nil, fmt.Errorf("%w: search produced no score", ErrEngineFault)
	}

	best := ev.Lines[0]
	ev.Score = best.Score
	ev.Mate = best.Mate
	ev.Depth = best.Depth
	ev.BestMove = best.Move

	fields := strings.Fields(bestmoveLine)
	if len(fields) > 1 && fields[1] != "(none)" {
		ev.BestMove = fields[1]
	}
	return ev, nil
}

// Fault marks the handle unusable; the pool destroys it on release.
func (h *Handle) Fault() {
	h.faulted = true
}

func (h *Handle) idleExpired(ttl time.Duration) bool {
	return ttl > 0 && time.Since(h.lastUsed) > ttl
}

func (h *Handle) kill() {
	h.faulted = true
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
		_ = h.cmd.Wait()
	}
}

// Close shuts the engine process down, politely first.
func (h *Handle) Close() {
	if h.cmd == nil {
		return
	}
	if !h.faulted {
		_ = h.send("quit")
		done := make(chan struct{})
		go func() {
			_ = h.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
			return
		case <-time.After(2 * time.Second):
		}
	}
	h.kill()
}
