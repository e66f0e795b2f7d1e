package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/pinky/manifest"
)

// runCLI runs the command line in a fresh temporary directory, so no
// pinky.toml from the surrounding tree is picked up.
func runCLI(t *testing.T, dir string, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	t.Chdir(dir)
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return out.String(), errOut.String(), code
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "loop.pinky", "i := 0\nwhile i < 3 do\n  println i\n  i := i + 1\nend\n")

	stdout, stderr, code := runCLI(t, dir, "loop.pinky")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if stdout != "0\n1\n2\n" {
		t.Errorf("stdout = %q, want %q", stdout, "0\n1\n2\n")
	}
}

func TestRunSyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.pinky", "println 1\nif x then\n")

	_, stderr, code := runCLI(t, dir, "bad.pinky")
	if code != exitUser {
		t.Errorf("exit code = %d, want %d", code, exitUser)
	}
	if !strings.HasPrefix(stderr, "bad.pinky:") {
		t.Errorf("stderr = %q, want a file:line:col prefix", stderr)
	}
}

func TestRunRuntimeError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "types.pinky", "println 'ok'\nprintln 'a' - 1\nprintln 'unreached'\n")

	stdout, stderr, code := runCLI(t, dir, "types.pinky")
	if code != exitUser {
		t.Errorf("exit code = %d, want %d", code, exitUser)
	}
	if stdout != "ok\n" {
		t.Errorf("stdout = %q, want %q", stdout, "ok\n")
	}
	if !strings.Contains(stderr, "line 2") {
		t.Errorf("stderr = %q, want the failing line", stderr)
	}
}

func TestRunInternalError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "undef.pinky", "println nope\n")

	_, _, code := runCLI(t, dir, "undef.pinky")
	if code != exitInternal {
		t.Errorf("exit code = %d, want %d", code, exitInternal)
	}
}

func TestRunMaxSteps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "spin.pinky", "while true do end\n")

	_, stderr, code := runCLI(t, dir, "-max-steps", "50", "spin.pinky")
	if code != exitUser {
		t.Errorf("exit code = %d, want %d", code, exitUser)
	}
	if !strings.Contains(stderr, "step limit") {
		t.Errorf("stderr = %q, want a step limit message", stderr)
	}
}

func TestCompileAndRunObject(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello.pinky", "x := 'wor'\nprintln 'hello ' + x + 'ld'\n")

	if _, stderr, code := runCLI(t, dir, "-o", "out/hello.pkbc", "hello.pinky"); code != exitOK {
		t.Fatalf("compile: exit code = %d, stderr = %q", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "hello.pkbc")); err != nil {
		t.Fatalf("object file not written: %v", err)
	}

	stdout, stderr, code := runCLI(t, dir, "out/hello.pkbc")
	if code != exitOK {
		t.Fatalf("run object: exit code = %d, stderr = %q", code, stderr)
	}
	if stdout != "hello world\n" {
		t.Errorf("stdout = %q, want %q", stdout, "hello world\n")
	}
}

func TestRunCorruptObject(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "junk.pkbc", "not cbor at all")

	_, _, code := runCLI(t, dir, "junk.pkbc")
	if code != exitUser {
		t.Errorf("exit code = %d, want %d", code, exitUser)
	}
}

func TestDump(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dump.pinky", "if true then println 1 end\n")

	stdout, stderr, code := runCLI(t, dir, "-dump", "dump.pinky")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	for _, want := range []string{"; === dump ===", "JMPZ", "LBL0:", "HALT"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("listing missing %q:\n%s", want, stdout)
		}
	}
}

func TestInitAndRunEntry(t *testing.T) {
	dir := t.TempDir()

	stdout, stderr, code := runCLI(t, dir, "-init", "demo")
	if code != exitOK {
		t.Fatalf("init: exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, manifest.FileName) {
		t.Errorf("init output = %q", stdout)
	}

	m, err := manifest.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Project.Name != "demo" || m.Project.Entry != "main.pinky" {
		t.Errorf("project = %+v", m.Project)
	}

	stdout, stderr, code = runCLI(t, dir)
	if code != exitOK {
		t.Fatalf("run entry: exit code = %d, stderr = %q", code, stderr)
	}
	if stdout != "Hello from demo\n" {
		t.Errorf("stdout = %q", stdout)
	}

	// A second init must not clobber the manifest.
	if _, _, code := runCLI(t, dir, "-init", "other"); code != exitUser {
		t.Errorf("second init: exit code = %d, want %d", code, exitUser)
	}
}

func TestBuildToManifestOutput(t *testing.T) {
	dir := t.TempDir()
	if _, stderr, code := runCLI(t, dir, "-init", "demo"); code != exitOK {
		t.Fatalf("init: exit code = %d, stderr = %q", code, stderr)
	}

	stdout, stderr, code := runCLI(t, dir, "-build")
	if code != exitOK {
		t.Fatalf("build: exit code = %d, stderr = %q", code, stderr)
	}
	if stdout != "" {
		t.Errorf("build ran the program: stdout = %q", stdout)
	}
	object := filepath.Join(dir, "build", "demo"+ObjectExt)
	if _, err := os.Stat(object); err != nil {
		t.Fatalf("object not written to build.output: %v", err)
	}

	stdout, stderr, code = runCLI(t, dir, object)
	if code != exitOK {
		t.Fatalf("run object: exit code = %d, stderr = %q", code, stderr)
	}
	if stdout != "Hello from demo\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestBuildWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "solo.pinky", "println 'solo'\n")

	if _, stderr, code := runCLI(t, dir, "-build", "solo.pinky"); code != exitOK {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "solo"+ObjectExt)); err != nil {
		t.Errorf("object not written next to the source: %v", err)
	}
}

func TestManifestMaxSteps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, manifest.FileName, "[project]\nname = \"spin\"\nentry = \"spin.pinky\"\n\n[run]\nmax-steps = 20\n")
	writeFile(t, dir, "spin.pinky", "while true do end\n")

	_, stderr, code := runCLI(t, dir)
	if code != exitUser || !strings.Contains(stderr, "step limit") {
		t.Errorf("exit code = %d, stderr = %q; want step limit failure", code, stderr)
	}

	// The flag overrides the manifest.
	writeFile(t, dir, "short.pinky", "println 1\n")
	if _, stderr, code := runCLI(t, dir, "-max-steps", "0", "short.pinky"); code != exitOK {
		t.Errorf("exit code = %d, stderr = %q", code, stderr)
	}
}

func TestNoFile(t *testing.T) {
	_, stderr, code := runCLI(t, t.TempDir())
	if code != exitUser {
		t.Errorf("exit code = %d, want %d", code, exitUser)
	}
	if !strings.Contains(stderr, "no file given") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestVerbosityFlag(t *testing.T) {
	opts, err := parseFlags([]string{"-v", "-v", "x.pinky"}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if opts.verbose != 2 {
		t.Errorf("verbose = %d, want 2", opts.verbose)
	}
	if opts.file != "x.pinky" {
		t.Errorf("file = %q", opts.file)
	}

	if _, err := parseFlags([]string{"a.pinky", "b.pinky"}, &bytes.Buffer{}); err == nil {
		t.Error("expected an error for two files")
	}
}

func TestExamples(t *testing.T) {
	examples, err := filepath.Abs(filepath.Join("..", "..", "examples"))
	if err != nil {
		t.Fatal(err)
	}
	files, err := filepath.Glob(filepath.Join(examples, "*.pinky"))
	if err != nil || len(files) == 0 {
		t.Fatalf("no examples found in %s: %v", examples, err)
	}

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			stdout, stderr, code := runCLI(t, t.TempDir(), file)
			if code != exitOK {
				t.Fatalf("exit code = %d, stderr = %q", code, stderr)
			}
			if stdout == "" {
				t.Error("example printed nothing")
			}
		})
	}
}

func TestFizzBuzzExample(t *testing.T) {
	file, err := filepath.Abs(filepath.Join("..", "..", "examples", "fizzbuzz.pinky"))
	if err != nil {
		t.Fatal(err)
	}
	stdout, _, code := runCLI(t, t.TempDir(), file)
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 30 {
		t.Fatalf("got %d lines, want 30", len(lines))
	}
	want := map[int]string{0: "1", 2: "Fizz", 4: "Buzz", 14: "FizzBuzz", 29: "FizzBuzz"}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %q, want %q", i+1, lines[i], w)
		}
	}
}
