package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "monkey-lsp"

var log = commonlog.GetLogger("monkey.server")

// builtinDocs describes each builtin for hover and completion.
var builtinDocs = map[string]struct {
	signature string
	doc       string
}{
	"len":   {"len(x)", "Number of characters in a string or elements in an array."},
	"puts":  {"puts(args...)", "Prints each argument on its own line and returns null."},
	"first": {"first(array)", "First element of an array, or null when it is empty."},
	"last":  {"last(array)", "Last element of an array, or null when it is empty."},
	"rest":  {"rest(array)", "A new array without the first element, or null when it is empty."},
	"push":  {"push(array, x)", "A new array with x appended. The argument is not modified."},
}

// LspServer bridges LSP editor features to the Monkey compiler via EngineWorker.
type LspServer struct {
	worker *EngineWorker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP(version string) *LspServer {
	s := &LspServer{
		worker:  NewEngineWorker(NewAnalyzer()),
		docs:    make(map[string]string),
		version: version,
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
	log.Info("Monkey LSP initializing")

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
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	s.worker.Do(func(a *Analyzer) interface{} {
		a.Forget(string(uri))
		return nil
	})

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI

	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(a *Analyzer) interface{} {
		return complete(a.Get(string(uri)), prefix)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, pos)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(a *Analyzer) interface{} {
		return hover(a.Get(string(uri)), word, pos)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI

	result, err := s.worker.Do(func(a *Analyzer) interface{} {
		return definition(a.Get(string(uri)), uri, params.Position)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	includeDecl := params.Context.IncludeDeclaration

	result, err := s.worker.Do(func(a *Analyzer) interface{} {
		return references(a.Get(string(uri)), uri, params.Position, includeDecl)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.([]protocol.Location), nil
}

// --- Analysis-backed logic (called on worker goroutine) ---

func complete(an *Analysis, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)
	matches := func(name string) bool {
		return strings.HasPrefix(strings.ToLower(name), lowerPrefix)
	}

	keywords := make([]string, 0, len(compiler.Keywords))
	for kw := range compiler.Keywords {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	for _, kw := range keywords {
		if matches(kw) {
			items = append(items, completionItem(kw, protocol.CompletionItemKindKeyword, "keyword"))
		}
	}

	for _, def := range vm.Builtins {
		if matches(def.Name) {
			items = append(items, completionItem(def.Name, protocol.CompletionItemKindFunction, builtinDocs[def.Name].signature))
		}
	}

	if an != nil {
		for _, b := range an.Globals() {
			if !matches(b.Name) || vm.LookupBuiltin(b.Name) != nil {
				continue
			}
			if b.IsFunc {
				items = append(items, completionItem(b.Name, protocol.CompletionItemKindFunction, bindingSignature(b)))
			} else {
				items = append(items, completionItem(b.Name, protocol.CompletionItemKindVariable, "global"))
			}
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func completionItem(label string, kind protocol.CompletionItemKind, detail string) protocol.CompletionItem {
	return protocol.CompletionItem{
		Label:      label,
		Kind:       &kind,
		Detail:     &detail,
		InsertText: &label,
	}
}

func hover(an *Analysis, word string, pos protocol.Position) *protocol.Hover {
	var b strings.Builder

	if binding := bindingAt(an, pos); binding != nil && binding.Name == word {
		if binding.IsFunc {
			fmt.Fprintf(&b, "**let %s** = `%s`\n\n", binding.Name, bindingSignature(binding))
		} else {
			fmt.Fprintf(&b, "**let %s**\n\n", binding.Name)
		}
		fmt.Fprintf(&b, "%s slot %d", strings.ToLower(string(binding.Scope)), binding.Index)
		if n := len(binding.Refs); n > 0 {
			fmt.Fprintf(&b, ", %d references", n)
		}
	} else if info, ok := builtinDocs[word]; ok {
		fmt.Fprintf(&b, "**%s** (builtin)\n\n---\n\n%s", info.signature, info.doc)
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

func definition(an *Analysis, uri protocol.DocumentUri, pos protocol.Position) []protocol.Location {
	binding := bindingAt(an, pos)
	if binding == nil {
		return nil
	}
	return []protocol.Location{{URI: uri, Range: toRange(binding.Span)}}
}

func references(an *Analysis, uri protocol.DocumentUri, pos protocol.Position, includeDecl bool) []protocol.Location {
	binding := bindingAt(an, pos)
	if binding == nil {
		return nil
	}

	var locations []protocol.Location
	if includeDecl {
		locations = append(locations, protocol.Location{URI: uri, Range: toRange(binding.Span)})
	}
	for _, ref := range binding.Refs {
		locations = append(locations, protocol.Location{URI: uri, Range: toRange(ref)})
	}
	return locations
}

func bindingAt(an *Analysis, pos protocol.Position) *Binding {
	if an == nil {
		return nil
	}
	return an.BindingAt(int(pos.Line)+1, int(pos.Character)+1)
}

func bindingSignature(b *Binding) string {
	return fmt.Sprintf("fn(%s)", strings.Join(b.Params, ", "))
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(a *Analyzer) interface{} {
		return a.Analyze(string(uri), text)
	})
	if err != nil {
		log.Errorf("analyzing %s: %s", uri, err)
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: toDiagnostics(result.(*Analysis)),
	})
}

func toDiagnostics(an *Analysis) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	for _, d := range an.Diagnostics {
		severity := protocol.DiagnosticSeverityError
		source := lspName + "/" + d.Source
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    toRange(d.Span),
			Severity: &severity,
			Source:   &source,
			Message:  d.Msg,
		})
	}
	return diagnostics
}

// toRange converts a 1-based source span to a 0-based LSP range. Spans that
// carry no position map to the start of the document.
func toRange(s compiler.Span) protocol.Range {
	return protocol.Range{
		Start: toPosition(s.Start),
		End:   toPosition(s.End),
	}
}

func toPosition(p compiler.Position) protocol.Position {
	line, col := p.Line-1, p.Column-1
	if line < 0 {
		line = 0
	}
	if col < 0 {
		col = 0
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)}
}

// --- Text extraction helpers ---

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// extractPrefix returns the identifier fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}

	if start == col {
		return ""
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
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}

	end := col
	for end < len(line) && isIdentChar(rune(line[end])) {
		end++
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
