// Package linker turns a set of cached codegen-unit objects into the final
// executable. The heavy lifting is delegated to the system C compiler
// driver, which knows the platform's CRT and library search dirs; ld is
// never invoked directly, and linking fails when no driver is found.
package linker

import (
	"fmt"
	"os/exec"
)

// Linker links codegen-unit objects plus the runtime archive into an
// executable.
type Linker struct {
	target  string
	objects []string
	output  string
	runtime string
	static  bool
	driver  string
}

// Option configures a Linker.
type Option func(*Linker)

// WithStatic forces fully static output.
func WithStatic() Option {
	return func(l *Linker) { l.static = true }
}

// WithDriver overrides the link driver binary (default: the first of clang,
// cc, gcc that is available).
func WithDriver(driver string) Option {
	return func(l *Linker) { l.driver = driver }
}

func New(target, output, runtime string, opts ...Option) *Linker {
	l := &Linker{
		target:  target,
		output:  output,
		runtime: runtime,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// AddObject queues one object file, in link order.
func (l *Linker) AddObject(path string) {
	l.objects = append(l.objects, path)
}

// Link produces the final executable from the queued objects and the
// runtime archive.
func (l *Linker) Link() error {
	if len(l.objects) == 0 {
		return fmt.Errorf("linker: no objects to link")
	}

	driver := l.driver
	if driver == "" {
		driver = firstAvailable("clang", "cc", "gcc")
	}
	if driver == "" {
		return fmt.Errorf("linker: no link driver found (tried clang, cc, gcc)")
	}

	args := []string{"-o", l.output}
	if l.static {
		args = append(args, "-static")
	}
	args = append(args, l.objects...)
	if l.runtime != "" {
		args = append(args, l.runtime)
	}
	if l.target == "linux" {
		args = append(args, "-lm")
	}

	cmd := exec.Command(driver, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("linker: %s: %w\n%s", driver, err, out)
	}
	return nil
}

func firstAvailable(candidates ...string) string {
	for _, c := range candidates {
		if _, err := exec.LookPath(c); err == nil {
			return c
		}
	}
	return ""
}
