package server

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/pinky/compiler"
)

const lspName = "pinky-lsp"

var lspLog = commonlog.GetLogger("pinky.lsp")

// keywordDocs is shown when hovering a keyword.
var keywordDocs = map[string]string{
	"if":      "`if cond then ... [elif cond then ...] [else ...] end`",
	"then":    "Starts the body of an `if` or `elif` branch.",
	"elif":    "`elif cond then ...`: tested when every earlier branch was false.",
	"else":    "Runs when every branch of the `if` was false.",
	"end":     "Closes an `if` or `while` block.",
	"while":   "`while cond do ... end`: repeats the body while the condition holds.",
	"do":      "Starts the body of a `while` loop.",
	"print":   "`print expr`: writes the value without a trailing newline.",
	"println": "`println expr`: writes the value followed by a newline.",
	"true":    "Boolean literal.",
	"false":   "Boolean literal.",
	"and":     "Logical AND of bools, bitwise AND of numbers.",
	"or":      "Logical OR of bools, bitwise OR of numbers.",
	"xor":     "Logical XOR of bools, bitwise XOR of numbers.",
}

// document is the server's view of one open file.
type document struct {
	text     string
	analysis *compiler.Analysis
}

// LspServer provides diagnostics and navigation for Pinky source files.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]*document // URI → latest content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[string]*document),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	lspLog.Info("Pinky LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	diagnostics := s.update(uri, params.TextDocument.Text)
	s.publish(ctx, uri, versionPtr(params.TextDocument.Version), diagnostics)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			diagnostics := s.update(uri, whole.Text)
			s.publish(ctx, uri, versionPtr(params.TextDocument.Version), diagnostics)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	s.publish(ctx, uri, nil, []protocol.Diagnostic{})
	return nil
}

// update re-checks a document and stores the result.
func (s *LspServer) update(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	res := checkSource(text)

	s.mu.Lock()
	s.docs[string(uri)] = &document{text: text, analysis: res.analysis}
	s.mu.Unlock()

	lspLog.Debugf("%s: %d diagnostics", uri, len(res.diagnostics))
	return lspDiagnostics(res.diagnostics)
}

// publish sends diagnostics from the handler goroutine. Notifications only
// write to the stream, and handlers run one at a time, so publishes reach
// the client in the order the edits arrived.
func (s *LspServer) publish(ctx *glsp.Context, uri protocol.DocumentUri, version *protocol.UInteger, diagnostics []protocol.Diagnostic) {
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Version:     version,
		Diagnostics: diagnostics,
	})
}

func (s *LspServer) document(uri protocol.DocumentUri) *document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[string(uri)]
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc := s.document(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	prefix := extractPrefix(doc.text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(doc.analysis, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc := s.document(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(doc.analysis, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	doc := s.document(uri)
	if doc == nil {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	spans := doc.analysis.Assignments[word]
	if len(spans) == 0 {
		return nil, nil
	}
	return protocol.Location{URI: uri, Range: lspRange(spans[0])}, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	doc := s.document(uri)
	if doc == nil {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return references(doc.analysis, uri, word, params.Context.IncludeDeclaration), nil
}

// --- Analysis-backed logic ---

func complete(a *compiler.Analysis, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem

	for _, kw := range compiler.Keywords() {
		if strings.HasPrefix(kw, prefix) {
			kind := protocol.CompletionItemKindKeyword
			items = append(items, protocol.CompletionItem{
				Label: kw,
				Kind:  &kind,
			})
		}
	}

	for _, name := range a.Globals() {
		if strings.HasPrefix(name, prefix) {
			kind := protocol.CompletionItemKindVariable
			detail := "global"
			items = append(items, protocol.CompletionItem{
				Label:  name,
				Kind:   &kind,
				Detail: &detail,
			})
		}
	}

	return items
}

func hover(a *compiler.Analysis, word string) *protocol.Hover {
	var b strings.Builder

	if compiler.IsKeyword(word) {
		doc, ok := keywordDocs[word]
		if !ok {
			doc = "Reserved for future use; not valid in programs."
		}
		fmt.Fprintf(&b, "**%s** (keyword)\n\n%s", word, doc)
	} else if spans, ok := a.Assignments[word]; ok {
		lines := make([]string, 0, len(spans))
		for _, sp := range spans {
			line := fmt.Sprint(sp.Start.Line)
			if !slices.Contains(lines, line) {
				lines = append(lines, line)
			}
		}
		fmt.Fprintf(&b, "**%s** (global)\n\nAssigned on line %s", word, strings.Join(lines, ", "))
		if n := len(a.References[word]); n > 0 {
			fmt.Fprintf(&b, "; read %d times", n)
		}
	} else {
		return nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func references(a *compiler.Analysis, uri protocol.DocumentUri, word string, includeDecl bool) []protocol.Location {
	var spans []compiler.Span
	if includeDecl {
		spans = append(spans, a.Assignments[word]...)
	}
	spans = append(spans, a.References[word]...)
	slices.SortFunc(spans, func(x, y compiler.Span) int {
		return x.Start.Offset - y.Start.Offset
	})

	locations := make([]protocol.Location, 0, len(spans))
	for _, sp := range spans {
		locations = append(locations, protocol.Location{URI: uri, Range: lspRange(sp)})
	}
	return locations
}

// --- Position conversion ---

// lspRange converts a 1-based span to a 0-based LSP range.
func lspRange(sp compiler.Span) protocol.Range {
	return protocol.Range{
		Start: lspPosition(sp.Start.Line, sp.Start.Column),
		End:   lspPosition(sp.End.Line, sp.End.Column),
	}
}

func lspPosition(line, column int) protocol.Position {
	return protocol.Position{
		Line:      protocol.UInteger(max(line-1, 0)),
		Character: protocol.UInteger(max(column-1, 0)),
	}
}

func lspDiagnostics(diags []Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	source := lspName
	for _, d := range diags {
		severity := protocol.DiagnosticSeverityError
		if d.Severity == SeverityWarning {
			severity = protocol.DiagnosticSeverityWarning
		}
		out = append(out, protocol.Diagnostic{
			Range: protocol.Range{
				Start: lspPosition(d.Line, d.Column),
				End:   lspPosition(d.EndLine, d.EndColumn),
			},
			Severity: &severity,
			Source:   &source,
			Message:  d.Message,
		})
	}
	return out
}

// --- Text extraction helpers ---

func isIdentChar(ch byte) bool {
	return ch == '_' || unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch))
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	start := col
	for start > 0 && isIdentChar(line[start-1]) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	start := col
	for start > 0 && isIdentChar(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isIdentChar(line[end]) {
		end++
	}
	return line[start:end]
}

func versionPtr(v protocol.Integer) *protocol.UInteger {
	if v < 0 {
		return nil
	}
	u := protocol.UInteger(v)
	return &u
}

func boolPtr(b bool) *bool {
	return &b
}
