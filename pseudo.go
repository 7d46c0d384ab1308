package fsreader

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// PseudoSource starts the generator behind a pseudo entry.
type PseudoSource interface {
	Spawn(id int) (PseudoStream, error)
}

// PseudoStream is the output of a running generator. Join waits for the
// generator to terminate, releases the stream and reports a non-nil error
// if the generator did not exit cleanly with status 0.
type PseudoStream interface {
	io.Reader
	Join() error
}

// ExecSource runs generators as shell commands: each registered id maps to
// a command executed with `/bin/sh -c`, whose standard output is the
// content of the pseudo file.
type ExecSource struct {
	mu       sync.RWMutex
	shell    string
	commands map[int]string
	next     int
}

// NewExecSource returns an empty source using /bin/sh.
func NewExecSource() *ExecSource {
	return &ExecSource{shell: "/bin/sh", commands: make(map[int]string)}
}

// Register records command and returns the generator id to store in Inode.PseudoID.
func (s *ExecSource) Register(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.commands[id] = command
	return id
}

// Command returns the command registered under id.
func (s *ExecSource) Command(id int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.commands[id]
	return c, ok
}

func (s *ExecSource) Spawn(id int) (PseudoStream, error) {
	command, ok := s.Command(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPseudo, id)
	}

	cmd := exec.Command(s.shell, "-c", command)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrSpawn, command, err)
	}
	return &execStream{cmd: cmd, out: out}, nil
}

type execStream struct {
	cmd *exec.Cmd
	out io.ReadCloser
}

func (s *execStream) Read(p []byte) (int, error) { return s.out.Read(p) }

func (s *execStream) Join() error {
	// Closing first lets a generator still writing exit on SIGPIPE; Wait
	// would close it as well but only after the process exits.
	_ = s.out.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrGenerator, s.cmd.Args[len(s.cmd.Args)-1], err)
	}
	return nil
}
