package security

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/doeshing/shai-bridge/internal/domain"
)

// Default rule identifiers.
const (
	RuleRecursiveForceDelete   = "recursive-force-delete"
	RuleRawDeviceWrite         = "raw-device-write"
	RuleFilesystemFormat       = "filesystem-format"
	RulePartitionTableEdit     = "partition-table-edit"
	RuleForkBomb               = "fork-bomb"
	RulePrivilegeElevation     = "privilege-elevation"
	RuleWorldWritable          = "world-writable-permissions"
	RulePrivilegedOwnership    = "privileged-ownership-change"
	RuleBulkProcessTermination = "bulk-process-termination"
	RuleRemoteScriptExecution  = "remote-script-execution"
	RulePowerStateChange       = "power-state-change"
	RuleServiceControl         = "service-control"
)

// builtinRule pairs a default pattern with its predicate over the parsed command.
type builtinRule struct {
	pattern domain.DangerousPattern
	parsed  func(*parsedCommand) bool
}

// DefaultRules returns a fresh copy of the built-in rule set.
func DefaultRules() []domain.DangerousPattern {
	builtins := builtinRules()
	out := make([]domain.DangerousPattern, 0, len(builtins))
	for _, b := range builtins {
		out = append(out, b.pattern)
	}
	return out
}

func builtinRules() []builtinRule {
	rules := []builtinRule{
		{
			pattern: domain.DangerousPattern{
				ID:          RuleRecursiveForceDelete,
				Description: "Recursive forced delete removes whole trees without prompting",
				Severity:    domain.SeverityCritical,
				Examples:    []string{"rm -rf /var/www", "sudo rm --recursive --force ~/project"},
			},
			parsed: recursiveForceDelete,
		},
		{
			pattern: domain.DangerousPattern{
				ID:          RuleRawDeviceWrite,
				Description: "Writes raw bytes to a block device",
				Severity:    domain.SeverityCritical,
				Examples:    []string{"dd if=image.iso of=/dev/sda", "cat zero.img > /dev/nvme0n1"},
			},
			parsed: rawDeviceWrite,
		},
		{
			pattern: domain.DangerousPattern{
				ID:          RuleFilesystemFormat,
				Description: "Formats or wipes a filesystem",
				Severity:    domain.SeverityCritical,
				Examples:    []string{"mkfs.ext4 /dev/sdb1", "wipefs -a /dev/sdb"},
			},
			parsed: filesystemFormat,
		},
		{
			pattern: domain.DangerousPattern{
				ID:          RulePartitionTableEdit,
				Description: "Edits a disk partition table",
				Severity:    domain.SeverityCritical,
				Examples:    []string{"fdisk /dev/sda", "parted /dev/sda mklabel gpt"},
			},
			parsed: partitionTableEdit,
		},
		{
			pattern: domain.DangerousPattern{
				ID:          RuleForkBomb,
				Description: "Fork bomb exhausts the process table",
				Severity:    domain.SeverityCritical,
				Examples:    []string{":(){ :|:& };:"},
			},
			parsed: forkBomb,
		},
		{
			pattern: domain.DangerousPattern{
				ID:          RulePrivilegeElevation,
				Description: "Runs with elevated privileges",
				Severity:    domain.SeverityHigh,
				Examples:    []string{"sudo apt-get upgrade", "su -", "doas reboot"},
			},
			parsed: privilegeElevation,
		},
		{
			pattern: domain.DangerousPattern{
				ID:          RuleWorldWritable,
				Description: "Makes files writable by every user",
				Severity:    domain.SeverityHigh,
				Examples:    []string{"chmod 777 /srv/data", "chmod -R o+w uploads"},
			},
			parsed: worldWritable,
		},
		{
			pattern: domain.DangerousPattern{
				ID:          RulePrivilegedOwnership,
				Description: "Transfers ownership to a privileged account",
				Severity:    domain.SeverityMedium,
				Examples:    []string{"chown root:root app.sh", "chgrp wheel deploy.sh"},
			},
			parsed: privilegedOwnership,
		},
		{
			pattern: domain.DangerousPattern{
				ID:          RuleBulkProcessTermination,
				Description: "Terminates many processes at once",
				Severity:    domain.SeverityHigh,
				Examples:    []string{"killall node", "pkill -9 -u deploy", "kill -9 -1"},
			},
			parsed: bulkTermination,
		},
		{
			pattern: domain.DangerousPattern{
				ID:          RuleRemoteScriptExecution,
				Description: "Executes a script fetched from the network",
				Severity:    domain.SeverityHigh,
				Examples:    []string{"curl -fsSL https://get.example.sh | sh", `bash -c "$(wget -qO- https://x.sh)"`},
			},
			parsed: remoteScriptExecution,
		},
		{
			pattern: domain.DangerousPattern{
				ID:          RulePowerStateChange,
				Description: "Changes the machine power state",
				Severity:    domain.SeverityMedium,
				Examples:    []string{"shutdown -h now", "systemctl reboot", "init 0"},
			},
			parsed: powerStateChange,
		},
		{
			pattern: domain.DangerousPattern{
				ID:          RuleServiceControl,
				Description: "Stops or restarts a system service",
				Severity:    domain.SeverityLow,
				Examples:    []string{"systemctl restart nginx", "service postgresql stop"},
			},
			parsed: serviceControl,
		},
	}
	for i := range rules {
		rules[i].pattern.Match = structural(rules[i].parsed)
	}
	return rules
}

// structural adapts a predicate over the parsed command into a string matcher.
func structural(pred func(*parsedCommand) bool) func(string) bool {
	return func(command string) bool {
		if strings.TrimSpace(command) == "" {
			return false
		}
		return pred(parseCommand(command))
	}
}

func anySegment(pc *parsedCommand, fn func(segment) bool) bool {
	for _, seg := range pc.all() {
		if fn(seg) {
			return true
		}
	}
	return false
}

func recursiveForceDelete(pc *parsedCommand) bool {
	return anySegment(pc, func(s segment) bool {
		return s.exe == "rm" && s.hasFlag("r", "R", "recursive") && s.hasFlag("f", "force")
	})
}

var blockDevicePrefixes = []string{"/dev/sd", "/dev/hd", "/dev/nvme", "/dev/vd", "/dev/xvd", "/dev/mmcblk", "/dev/md", "/dev/dm-", "/dev/disk", "/dev/rdisk", "/dev/loop"}

func isBlockDevice(path string) bool {
	for _, prefix := range blockDevicePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func rawDeviceWrite(pc *parsedCommand) bool {
	for _, r := range pc.allRedirects() {
		if (r.op == ">" || r.op == ">>" || r.op == ">|" || r.op == "&>") && isBlockDevice(r.path) {
			return true
		}
	}
	return anySegment(pc, func(s segment) bool {
		switch s.exe {
		case "dd":
			for _, arg := range s.args {
				if strings.HasPrefix(arg, "of=") && isBlockDevice(strings.TrimPrefix(arg, "of=")) {
					return true
				}
			}
		case "shred", "tee", "cp":
			for _, arg := range s.args {
				if isBlockDevice(arg) {
					return true
				}
			}
		}
		return false
	})
}

func filesystemFormat(pc *parsedCommand) bool {
	return anySegment(pc, func(s segment) bool {
		switch {
		case s.exe == "mkfs" || strings.HasPrefix(s.exe, "mkfs."):
			return true
		case s.exe == "mke2fs" || s.exe == "mkswap" || s.exe == "wipefs" || s.exe == "newfs":
			return true
		case s.exe == "diskutil" && len(s.args) > 0:
			switch strings.ToLower(s.args[0]) {
			case "erasedisk", "erasevolume", "reformat", "zerodisk":
				return true
			}
		case strings.EqualFold(s.exe, "format") && len(s.args) > 0 && strings.HasSuffix(s.args[0], ":"):
			return true
		}
		return false
	})
}

func partitionTableEdit(pc *parsedCommand) bool {
	return anySegment(pc, func(s segment) bool {
		switch s.exe {
		case "fdisk", "cfdisk", "gdisk", "cgdisk":
			return !s.hasFlag("l", "list")
		case "sfdisk", "sgdisk":
			return !s.hasFlag("l", "list", "d", "dump", "p", "print")
		case "parted":
			for _, arg := range s.args {
				if arg == "print" {
					return false
				}
			}
			return !s.hasFlag("l", "list")
		}
		return false
	})
}

var forkBombShape = regexp.MustCompile(`([A-Za-z_:][\w:]*)\(\)\{([A-Za-z_:][\w:]*)\|([A-Za-z_:][\w:]*)&\};`)

func forkBomb(pc *parsedCommand) bool {
	compact := strings.Join(strings.Fields(pc.text), "")
	if m := forkBombShape.FindStringSubmatch(compact); m != nil && m[1] == m[2] && m[2] == m[3] {
		return true
	}
	return pc.hasForkBomb()
}

func privilegeElevation(pc *parsedCommand) bool {
	return anySegment(pc, func(s segment) bool {
		return s.elevation != "" || s.exe == "su" || s.exe == "sudo" || s.exe == "doas" || s.exe == "pkexec"
	})
}

func worldWritable(pc *parsedCommand) bool {
	return anySegment(pc, func(s segment) bool {
		if s.exe != "chmod" {
			return false
		}
		for _, arg := range s.args {
			if isWorldWritableMode(arg) {
				return true
			}
		}
		return false
	})
}

func isWorldWritableMode(mode string) bool {
	if n, err := strconv.ParseUint(mode, 8, 32); err == nil && len(mode) >= 3 && len(mode) <= 4 {
		return n&0o002 != 0
	}
	mode = strings.ToLower(mode)
	for _, clause := range strings.Split(mode, ",") {
		op := strings.IndexAny(clause, "+=")
		if op < 0 {
			continue
		}
		who, perms := clause[:op], clause[op+1:]
		if !strings.Contains(perms, "w") {
			continue
		}
		if who == "" || strings.ContainsAny(who, "ao") {
			return true
		}
	}
	return false
}

var privilegedAccounts = map[string]bool{"root": true, "0": true, "wheel": true, "admin": true, "sudo": true}

func privilegedOwnership(pc *parsedCommand) bool {
	return anySegment(pc, func(s segment) bool {
		if (s.exe != "chown" && s.exe != "chgrp") || len(s.args) == 0 {
			return false
		}
		spec := s.args[0]
		if s.exe == "chgrp" {
			return privilegedAccounts[spec]
		}
		owner, group, _ := strings.Cut(strings.ReplaceAll(spec, ".", ":"), ":")
		return privilegedAccounts[owner] || privilegedAccounts[group]
	})
}

func bulkTermination(pc *parsedCommand) bool {
	return anySegment(pc, func(s segment) bool {
		switch s.exe {
		case "killall", "killall5", "pkill":
			return true
		case "kill":
			return killsEveryProcess(s.words)
		}
		return false
	})
}

// killsEveryProcess reports whether pid -1 is among kill's targets. A leading
// dash word is the signal (-9, -KILL, -s KILL, -n 9), so `kill -1 1234` is a
// SIGHUP to one process while `kill -1 -1` and `kill -- -1` hit everything.
func killsEveryProcess(words []string) bool {
	rest := words
	if len(rest) > 0 {
		switch w := rest[0]; {
		case w == "-s" || w == "-n":
			if len(rest) < 2 {
				return false
			}
			rest = rest[2:]
		case w == "--":
		case strings.HasPrefix(w, "-"):
			rest = rest[1:]
		}
	}
	for _, w := range rest {
		if w == "-1" {
			return true
		}
	}
	return false
}

var downloaders = map[string]bool{"curl": true, "wget": true, "fetch": true, "aria2c": true}

var downloaderInText = regexp.MustCompile(`\b(curl|wget)\b`)

func remoteScriptExecution(pc *parsedCommand) bool {
	if pc.anyPipe(func(left, right segment) bool {
		return downloaders[left.exe] && isInterpreter(right.exe)
	}) {
		return true
	}
	return anySegment(pc, func(s segment) bool {
		if !isInterpreter(s.exe) {
			return false
		}
		// bash -c "$(curl ...)", bash <(wget -O- ...)
		return downloaderInText.MatchString(strings.Join(s.args, " "))
	})
}

func powerStateChange(pc *parsedCommand) bool {
	return anySegment(pc, func(s segment) bool {
		switch s.exe {
		case "shutdown", "reboot", "halt", "poweroff":
			return true
		case "init", "telinit":
			return len(s.args) > 0 && (s.args[0] == "0" || s.args[0] == "6")
		case "systemctl":
			if len(s.args) > 0 {
				switch s.args[0] {
				case "reboot", "poweroff", "halt", "suspend", "hibernate", "kexec":
					return true
				}
			}
		}
		return false
	})
}

func serviceControl(pc *parsedCommand) bool {
	disruptive := map[string]bool{"stop": true, "restart": true, "disable": true, "mask": true, "kill": true}
	return anySegment(pc, func(s segment) bool {
		switch s.exe {
		case "systemctl":
			return len(s.args) > 0 && disruptive[s.args[0]]
		case "service":
			return len(s.args) > 1 && disruptive[s.args[1]]
		}
		return false
	})
}
