package jailfile

import (
	"fmt"
	"strings"

	"github.com/banksean/xcd/interp"
)

// Build is the interpreted form of a parsed Jailfile: an ordered build
// plan a JailContext executes against a running scratch container,
// mirroring the original JailContext/ConfigMod split in xc-bin's jailfile
// module (config-affecting directives accumulate as ConfigMods applied to
// the image's jail.json at the end of the build, everything else runs
// immediately against the container).
type Build struct {
	From      string
	Run       []RunStep
	Copy      []CopyStep
	Env       []EnvVar
	Volumes   []VolumeHint
	Allow     []AllowFlag
	NoInit    bool
	NoDeinit  bool
	SysVIPC   map[string]bool
	Mounts    []MountStep
	Workdir   string
}

type RunStep struct {
	Args []string
	Body string // heredoc script body, run via sh -c if non-empty
}

type CopyStep struct {
	From string // --from=<stage>, empty means build context
	To   string // --to=<dest>, defaults to last positional arg
	Src  []string
}

type EnvVar struct {
	Key      string
	Value    string
	Require  bool // --require: must be supplied by the caller, Value is ignored
	Default  bool // -d: Value is a default, overridable by the caller
}

type VolumeHint struct {
	MountPoint string
	Hints      map[string]string // --hint k=v; only the last --hint on a line is kept
	Required   bool
	ReadOnly   bool
}

type AllowFlag struct {
	Name    string
	Replace bool // --replace=true: overrides rather than merges with the base image's ALLOW list
}

type MountStep struct {
	Args []string
}

// Interpret walks actions in order, applying $VAR interpolation from env to
// every positional argument before dispatch, and returns the accumulated
// Build. Unknown directives are an error: a typo in a Jailfile should not
// silently no-op.
func Interpret(actions []Action, env map[string]string) (*Build, error) {
	b := &Build{SysVIPC: map[string]bool{}}
	for _, a := range actions {
		args := make([]string, len(a.Args))
		for i, raw := range a.Args {
			v, err := interp.Apply(raw, env)
			if err != nil {
				return nil, fmt.Errorf("jailfile line %d: %w", a.Line, err)
			}
			args[i] = v
		}

		switch a.Directive {
		case "FROM":
			if len(args) != 1 {
				return nil, fmt.Errorf("jailfile line %d: FROM takes exactly one argument", a.Line)
			}
			b.From = args[0]

		case "WORKDIR":
			if len(args) != 1 {
				return nil, fmt.Errorf("jailfile line %d: WORKDIR takes exactly one argument", a.Line)
			}
			b.Workdir = args[0]

		case "RUN":
			step := RunStep{Args: args}
			if a.Heredoc != nil {
				step.Body = *a.Heredoc
			}
			b.Run = append(b.Run, step)

		case "COPY":
			if len(args) < 2 {
				return nil, fmt.Errorf("jailfile line %d: COPY requires at least a source and destination", a.Line)
			}
			b.Copy = append(b.Copy, CopyStep{
				From: a.Flags["from"],
				To:   a.Flags["to"],
				Src:  args,
			})

		case "ENV":
			for _, kv := range args {
				eq := strings.IndexByte(kv, '=')
				ev := EnvVar{Require: a.Flags["require"] == "true", Default: a.Flags["d"] == "true"}
				if eq >= 0 {
					ev.Key, ev.Value = kv[:eq], kv[eq+1:]
				} else {
					ev.Key = kv
				}
				b.Env = append(b.Env, ev)
			}

		case "VOLUME":
			if len(args) != 1 {
				return nil, fmt.Errorf("jailfile line %d: VOLUME takes exactly one mountpoint", a.Line)
			}
			hints := map[string]string{}
			for k, v := range a.Flags {
				if k == "hint" {
					eq := strings.IndexByte(v, '=')
					if eq >= 0 {
						hints[v[:eq]] = v[eq+1:]
					}
				}
			}
			b.Volumes = append(b.Volumes, VolumeHint{
				MountPoint: args[0],
				Hints:      hints,
				Required:   a.Flags["required"] == "true",
				ReadOnly:   a.Flags["ro"] == "true",
			})

		case "ALLOW":
			for _, name := range args {
				b.Allow = append(b.Allow, AllowFlag{Name: name, Replace: a.Flags["replace"] == "true"})
			}

		case "NOINIT":
			b.NoInit = true

		case "NODEINIT":
			b.NoDeinit = true

		case "SYSVIPC":
			for _, flag := range args {
				switch flag {
				case "shm", "msg", "sem":
					b.SysVIPC[flag] = true
				case "-shm", "-msg", "-sem":
					b.SysVIPC[strings.TrimPrefix(flag, "-")] = false
				default:
					return nil, fmt.Errorf("jailfile line %d: unknown SYSVIPC flag %q", a.Line, flag)
				}
			}

		case "MOUNT":
			b.Mounts = append(b.Mounts, MountStep{Args: args})

		default:
			return nil, fmt.Errorf("jailfile line %d: unknown directive %q", a.Line, a.Directive)
		}
	}
	return b, nil
}
