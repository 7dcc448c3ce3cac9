package deps

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// Flags holds the dependency evidence found on a compiler or linker
// command line.
type Flags struct {
	Includes     []string // -I, /I, -isystem, -imsvc, -iquote and -idirafter directories
	Libraries    []string // -l and /DEFAULTLIB: names
	LibraryFiles []string // library archives or shared objects passed by path
}

// includeOptions take a directory either attached or as the next argument.
var includeOptions = []string{"-isystem", "-imsvc", "-iquote", "-idirafter", "-I", "/I"}

var libraryFile = regexp.MustCompile(`(?i)\.(?:lib|a|dylib|so(?:\.\d+)*)$`)

// SplitCommand splits a shell command line into arguments. Single and
// double quotes group; backslashes are kept literally so Windows paths
// survive.
func SplitCommand(cmd string) []string {
	var (
		args  []string
		cur   strings.Builder
		quote rune
		inArg bool
	)
	for _, r := range cmd {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case unicode.IsSpace(r):
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args
}

// ParseCommand extracts include directories and libraries from a command
// line string.
func ParseCommand(cmd string) Flags {
	return ParseArgs(SplitCommand(cmd))
}

// ParseArgs extracts include directories and libraries from an argument
// vector. Options passed through the driver with -Wl, are unpacked.
func ParseArgs(args []string) Flags {
	var f Flags
	for i := 0; i < len(args); i++ {
		a := args[i]
		next := func() string {
			if i+1 < len(args) {
				i++
				return args[i]
			}
			return ""
		}

		if rest, ok := strings.CutPrefix(a, "-Wl,"); ok {
			sub := ParseArgs(strings.Split(rest, ","))
			f.Includes = append(f.Includes, sub.Includes...)
			f.Libraries = append(f.Libraries, sub.Libraries...)
			f.LibraryFiles = append(f.LibraryFiles, sub.LibraryFiles...)
			continue
		}

		if opt, ok := lo.Find(includeOptions, func(o string) bool { return strings.HasPrefix(a, o) }); ok {
			dir := a[len(opt):]
			if dir == "" {
				dir = next()
			}
			f.addInclude(dir)
			continue
		}

		switch {
		case a == "-l":
			f.addLibrary(next())
		case strings.HasPrefix(a, "-l"):
			f.addLibrary(a[2:])
		case len(a) > 12 && strings.EqualFold(a[:12], "/DEFAULTLIB:"):
			f.addLibrary(a[12:])
		case len(a) > 12 && strings.EqualFold(a[:12], "-DEFAULTLIB:"):
			f.addLibrary(a[12:])
		case !strings.HasPrefix(a, "-") && libraryFile.MatchString(a):
			f.LibraryFiles = append(f.LibraryFiles, a)
		}
	}
	f.Includes = uniq(f.Includes)
	f.Libraries = uniq(f.Libraries)
	f.LibraryFiles = uniq(f.LibraryFiles)
	return f
}

// uniq keeps nil for empty input so unset fields stay nil.
func uniq(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return lo.Uniq(s)
}

func (f *Flags) addInclude(dir string) {
	dir = strings.TrimSpace(dir)
	if dir == "" || strings.HasPrefix(dir, "-") {
		return
	}
	f.Includes = append(f.Includes, dir)
}

func (f *Flags) addLibrary(name string) {
	name = strings.TrimPrefix(strings.TrimSpace(name), ":")
	if name == "" || strings.HasPrefix(name, "-") {
		return
	}
	f.Libraries = append(f.Libraries, name)
}

// Merge appends other's evidence to f.
func (f *Flags) Merge(other Flags) {
	f.Includes = uniq(append(f.Includes, other.Includes...))
	f.Libraries = uniq(append(f.Libraries, other.Libraries...))
	f.LibraryFiles = uniq(append(f.LibraryFiles, other.LibraryFiles...))
}

// External returns the evidence that points outside root: include
// directories resolved against base, and library files. Library names are
// kept as they carry no location.
func (f Flags) External(root, base string) Flags {
	return Flags{
		Includes: lo.Filter(f.Includes, func(p string, _ int) bool {
			return IsExternalPath(p, root, base)
		}),
		Libraries: f.Libraries,
		LibraryFiles: lo.Filter(f.LibraryFiles, func(p string, _ int) bool {
			return IsExternalPath(p, root, base)
		}),
	}
}

// Components maps the evidence to fingerprinted components. Library files
// contribute their file name as a link library and their directory as an
// include hint, which is where versioned install prefixes show up.
func (f Flags) Components(source string) []Component {
	includes := append([]string(nil), f.Includes...)
	libs := append([]string(nil), f.Libraries...)
	for _, file := range f.LibraryFiles {
		slash := strings.ReplaceAll(file, `\`, "/")
		libs = append(libs, slash[strings.LastIndex(slash, "/")+1:])
		if i := strings.LastIndex(slash, "/"); i > 0 {
			includes = append(includes, slash[:i])
		}
	}
	return FromPaths(source, includes, libs)
}
