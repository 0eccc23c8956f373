package runtime

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
)

// Overrides replace parts of a located descriptor. Commands are shell-like
// strings split with SplitCommand. Build set to "-" disables the build step.
type Overrides struct {
	Install string            `toml:"install" json:"install,omitempty"`
	Build   string            `toml:"build" json:"build,omitempty"`
	Start   string            `toml:"start" json:"start,omitempty"`
	Env     map[string]string `toml:"env" json:"env,omitempty"`
}

// IsZero reports whether no override is set.
func (o Overrides) IsZero() bool {
	return o.Install == "" && o.Build == "" && o.Start == "" && len(o.Env) == 0
}

// Apply returns d with the overrides applied.
func (o Overrides) Apply(d Descriptor) (Descriptor, error) {
	d = d.Clone()

	if o.Install != "" {
		name, args, err := splitOverride("install", o.Install)
		if err != nil {
			return Descriptor{}, err
		}
		d.InstallCommand, d.InstallArgs = name, args
	}

	switch strings.TrimSpace(o.Build) {
	case "":
	case "-":
		d.BuildCommand, d.BuildArgs = "", nil
	default:
		name, args, err := splitOverride("build", o.Build)
		if err != nil {
			return Descriptor{}, err
		}
		d.BuildCommand, d.BuildArgs = name, args
	}

	if o.Start != "" {
		name, args, err := splitOverride("start", o.Start)
		if err != nil {
			return Descriptor{}, err
		}
		d.StartCommand, d.StartArgs = name, args
	}

	if len(o.Env) > 0 {
		if d.Env == nil {
			d.Env = make(map[string]string, len(o.Env))
		}
		maps.Copy(d.Env, o.Env)
	}

	return d, nil
}

func splitOverride(step, command string) (string, []string, error) {
	args, err := SplitCommand(command)
	if err != nil {
		return "", nil, fmt.Errorf("invalid %s command: %w", step, err)
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("invalid %s command: empty", step)
	}
	return args[0], args[1:], nil
}

// WithOverrides wraps a locator so that o applies to everything it locates.
// When the inner locator finds no manifest and o names a start command, the
// overrides alone form the descriptor.
func WithOverrides(inner Locator, o Overrides) Locator {
	if o.IsZero() {
		return inner
	}
	return LocatorFunc(func(ctx context.Context, dir string) (Descriptor, error) {
		d, err := inner.Locate(ctx, dir)
		if err != nil && !recoverable(err, o) {
			return Descriptor{}, err
		}
		return o.Apply(d)
	})
}

func recoverable(err error, o Overrides) bool {
	return o.Start != "" && (errors.Is(err, ErrNoManifest) || errors.Is(err, ErrNoStartCommand))
}

// SplitCommand splits a command string into arguments with POSIX shell
// quoting: single quotes keep everything literal, inside double quotes a
// backslash escapes only $ ` " and \, and elsewhere it escapes any character.
func SplitCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoted := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote, quoted = true, true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case (r == ' ' || r == '\t') && !inQuote:
			if current.Len() > 0 || quoted {
				args = append(args, current.String())
				current.Reset()
				quoted = false
			}
		case r == '\\' && i+1 < len(runes) && escapes(quoteChar, runes[i+1]):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}
	if current.Len() > 0 || quoted {
		args = append(args, current.String())
	}

	return args, nil
}

// escapes reports whether a backslash before next is an escape inside the
// given quote (0 when unquoted).
func escapes(quote, next rune) bool {
	switch quote {
	case '\'':
		return false
	case '"':
		return strings.ContainsRune("$`\"\\", next)
	default:
		return true
	}
}
