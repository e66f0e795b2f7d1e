// Pinky CLI - compiles and runs Pinky programs
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/tliron/kutil/util"

	"github.com/chazu/pinky/compiler"
	"github.com/chazu/pinky/manifest"
	"github.com/chazu/pinky/pkg/bytecode"
	"github.com/chazu/pinky/server"
)

// Exit statuses. Internal errors use EX_SOFTWARE from sysexits.h.
const (
	exitOK       = 0
	exitUser     = 1
	exitInternal = 70
)

// ObjectExt is the file extension of compiled programs.
const ObjectExt = ".pkbc"

var log = commonlog.GetLogger("pinky")

// verbosityFlag counts repeated -v flags.
type verbosityFlag int

func (v *verbosityFlag) String() string { return strconv.Itoa(int(*v)) }

func (v *verbosityFlag) Set(s string) error {
	if s == "true" {
		*v++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid verbosity %q", s)
	}
	*v = verbosityFlag(n)
	return nil
}

func (v *verbosityFlag) IsBoolFlag() bool { return true }

func main() {
	// util.Exit flushes the buffered log writer before exiting.
	util.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options holds the parsed command line.
type options struct {
	output   string
	build    bool
	dump     bool
	maxSteps int
	verbose  verbosityFlag
	lsp      bool
	serve    bool
	addr     string
	initName string
	file     string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("pinky", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.output, "o", "", "Compile to an object file instead of running")
	fs.BoolVar(&opts.build, "build", false, "Compile to build.output from pinky.toml instead of running")
	fs.BoolVar(&opts.dump, "dump", false, "Print the bytecode listing instead of running")
	fs.IntVar(&opts.maxSteps, "max-steps", -1, "Abort after this many instructions (0 = unlimited)")
	fs.Var(&opts.verbose, "v", "Verbose logging (repeat for more)")
	fs.BoolVar(&opts.lsp, "lsp", false, "Start the language server on stdio")
	fs.BoolVar(&opts.serve, "serve", false, "Start the eval service (Connect HTTP)")
	fs.StringVar(&opts.addr, "addr", "", "Eval service address (used with -serve)")
	fs.StringVar(&opts.initName, "init", "", "Create a pinky.toml for a new project with this name")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pinky [options] [file]\n\n")
		fmt.Fprintf(stderr, "Compiles and runs a .pinky source file or a %s object file.\n", ObjectExt)
		fmt.Fprintf(stderr, "Without a file, runs project.entry from the nearest pinky.toml.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  pinky hello.pinky                # Compile and run\n")
		fmt.Fprintf(stderr, "  pinky -o hello%s hello.pinky  # Compile to an object file\n", ObjectExt)
		fmt.Fprintf(stderr, "  pinky hello%s                 # Run an object file\n", ObjectExt)
		fmt.Fprintf(stderr, "  pinky -build                     # Compile project.entry to build.output\n")
		fmt.Fprintf(stderr, "  pinky -dump hello.pinky          # Show the bytecode\n")
		fmt.Fprintf(stderr, "  pinky -serve -addr :8080         # Start the eval service\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch fs.NArg() {
	case 0:
	case 1:
		opts.file = fs.Arg(0)
	default:
		fs.Usage()
		return nil, errors.New("at most one file may be given")
	}
	return opts, nil
}

// run executes the command line and returns the exit status.
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUser
	}

	if opts.initName != "" {
		return initProject(opts.initName, stdout, stderr)
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(stderr, "Error loading manifest: %v\n", err)
		return exitUser
	}
	if m == nil {
		m = manifest.Default()
	}

	if err := configureLogging(opts.verbose, m.Run.LogLevel); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUser
	}

	switch {
	case opts.lsp:
		if err := server.NewLSP().Run(); err != nil {
			fmt.Fprintf(stderr, "LSP error: %v\n", err)
			return exitInternal
		}
		return exitOK
	case opts.serve:
		return serve(opts, m, stderr)
	}

	file := opts.file
	if file == "" {
		file = m.EntryPath()
	}
	if file == "" {
		fmt.Fprintln(stderr, "Error: no file given and no project.entry in pinky.toml")
		return exitUser
	}

	prog, status := load(file, stderr)
	if prog == nil {
		return status
	}

	if opts.dump {
		fmt.Fprint(stdout, prog.Disassemble())
		return exitOK
	}
	if output := objectPath(opts, m, file); output != "" {
		return writeObject(prog, output, stderr)
	}

	maxSteps := m.Run.MaxSteps
	if opts.maxSteps >= 0 {
		maxSteps = opts.maxSteps
	}
	return execute(prog, file, maxSteps, stdout, stderr)
}

// configureLogging applies -v when given, otherwise the manifest level.
// One -v means info, two or more debug.
func configureLogging(verbose verbosityFlag, level string) error {
	verbosity := int(verbose)
	if verbosity == 0 {
		v, err := manifest.Verbosity(level)
		if err != nil {
			return err
		}
		verbosity = v
	}
	commonlog.Configure(verbosity, nil)
	return nil
}

// load reads a source or object file and returns a verified program.
// On failure the program is nil and the status says why.
func load(file string, stderr io.Writer) (*bytecode.Program, int) {
	data, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, exitUser
	}

	if filepath.Ext(file) == ObjectExt {
		prog, err := bytecode.Unmarshal(data)
		if err == nil {
			err = prog.Verify()
		}
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", file, err)
			return nil, exitUser
		}
		log.Debugf("loaded %s: %d instructions", file, prog.Len())
		return prog, exitOK
	}

	ast, err := compiler.Parse(string(data))
	if err != nil {
		var errs compiler.ErrorList
		if errors.As(err, &errs) {
			for _, e := range errs {
				fmt.Fprintf(stderr, "%s:%v\n", file, e)
			}
		} else {
			fmt.Fprintf(stderr, "%s: %v\n", file, err)
		}
		return nil, exitUser
	}
	for _, w := range compiler.Analyze(ast).Warnings {
		log.Warningf("%s:%s", file, w)
	}

	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	prog, err := compiler.NewCompiler().Compile(ast, name)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", file, err)
		return nil, exitInternal
	}
	return prog, exitOK
}

// objectPath returns where to write the compiled program, or "" to run it.
// -o wins over -build; -build uses build.output, falling back to the
// source name with the object extension.
func objectPath(opts *options, m *manifest.Manifest, file string) string {
	switch {
	case opts.output != "":
		return opts.output
	case !opts.build:
		return ""
	case m.OutputPath() != "":
		return m.OutputPath()
	default:
		return strings.TrimSuffix(file, filepath.Ext(file)) + ObjectExt
	}
}

func writeObject(prog *bytecode.Program, path string, stderr io.Writer) int {
	data, err := bytecode.Marshal(prog)
	if err != nil {
		fmt.Fprintf(stderr, "Error encoding %s: %v\n", path, err)
		return exitInternal
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUser
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUser
	}
	log.Infof("wrote %s (%d bytes)", path, len(data))
	return exitOK
}

func execute(prog *bytecode.Program, file string, maxSteps int, stdout, stderr io.Writer) int {
	v := bytecode.NewVM(bytecode.WithOutput(stdout), bytecode.WithMaxSteps(maxSteps))
	err := v.Run(prog)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "%s: %v\n", file, err)
	if bytecode.IsInternal(err) {
		return exitInternal
	}
	return exitUser
}

func serve(opts *options, m *manifest.Manifest, stderr io.Writer) int {
	addr := m.Server.Addr
	if opts.addr != "" {
		addr = opts.addr
	}
	maxSteps := m.Server.MaxSteps
	if opts.maxSteps >= 0 {
		maxSteps = opts.maxSteps
	}

	srv, err := server.New(server.WithMaxSteps(maxSteps))
	if err != nil {
		fmt.Fprintf(stderr, "Server error: %v\n", err)
		return exitInternal
	}
	defer srv.Stop()
	if err := srv.ListenAndServe(addr); err != nil {
		fmt.Fprintf(stderr, "Server error: %v\n", err)
		return exitUser
	}
	return exitOK
}

// initProject writes a pinky.toml and an entry file in the current
// directory.
func initProject(name string, stdout, stderr io.Writer) int {
	m := &manifest.Manifest{
		Project: manifest.Project{Name: name, Entry: "main.pinky"},
		Build:   manifest.BuildConfig{Output: filepath.Join("build", name+ObjectExt)},
	}
	if err := manifest.Write(".", m); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUser
	}
	fmt.Fprintf(stdout, "Created %s\n", manifest.FileName)

	if _, err := os.Stat(m.Project.Entry); errors.Is(err, os.ErrNotExist) {
		src := fmt.Sprintf("println 'Hello from %s'\n", name)
		if err := os.WriteFile(m.Project.Entry, []byte(src), 0o644); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUser
		}
		fmt.Fprintf(stdout, "Created %s\n", m.Project.Entry)
	}
	return exitOK
}
