package tools

import (
	"reflect"
	"testing"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{`@"create_file" filename: "docs/a.md"`, "create_file", true},
		{`please run @get_recent_context hours: 4`, "get_recent_context", true},
		{`@'generate_mermaid_graph' topic: auth`, "generate_mermaid_graph", true},
		{`@"create_file' mismatched quotes`, "create_file", true},
		{`email me at @ home then @create_file`, "create_file", true},
		{`@first and @second`, "first", true},
		{`no marker here`, "", false},
		{`trailing @`, "", false},
		{`@"" empty`, "", false},
		{`merci @équipe_2 !`, "équipe_2", true},
		{`@данные, please`, "данные", true},
		{`@ünïcode's`, "ünïcode", true},
	}
	for _, tc := range cases {
		got, ok := Detect(tc.text)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Detect(%q) = (%q, %v), want (%q, %v)", tc.text, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExtractParamsCreateFile(t *testing.T) {
	got := ExtractParams(ToolCreateFile, `@"create_file" filename: "docs/a.md" content: "hello"`)
	want := Params{"filename": "docs/a.md", "content": "hello"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractParams = %v, want %v", got, want)
	}
}

func TestExtractParamsCreateFileVariants(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Params
	}{
		{
			name: "defaults",
			text: `@create_file`,
			want: Params{"filename": defaultFilename},
		},
		{
			name: "bare filename stops at whitespace",
			text: `@create_file FILENAME notes/setup.md please`,
			want: Params{"filename": "notes/setup.md"},
		},
		{
			name: "multi-line content",
			text: "@create_file filename: 'README.md' content: \"# Title\nline two\"",
			want: Params{"filename": "README.md", "content": "# Title\nline two"},
		},
		{
			name: "bare content is ignored",
			text: `@create_file content: hello`,
			want: Params{"filename": defaultFilename},
		},
		{
			name: "label without separator is skipped",
			text: `@create_file contents_of "x" content: "real"`,
			want: Params{"filename": defaultFilename, "content": "real"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractParams(ToolCreateFile, tc.text)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ExtractParams = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExtractParamsHours(t *testing.T) {
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{`@get_recent_context hours: 48`, "48", true},
		{`@get_recent_context HOUR 6`, "6", true},
		{`@get_recent_context hours:12h`, "12", true},
		{`@get_recent_context`, "", false},
		{`@get_recent_context hours: many`, "", false},
		{`@get_recent_context in the last few hours, hours: 3`, "3", true},
	}
	for _, tc := range cases {
		got, ok := ExtractParams(ToolRecentContext, tc.text)["hours"]
		if got != tc.want || ok != tc.ok {
			t.Errorf("hours for %q = (%q, %v), want (%q, %v)", tc.text, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExtractParamsTopic(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{`@generate_mermaid_graph topic: "auth flow"`, "auth flow"},
		{"@generate_mermaid_graph topic: payments v2\nignored line", "payments v2"},
		{`@generate_mermaid_graph   onboarding checklist  `, "onboarding checklist"},
		{`@"generate_mermaid_graph" billing`, "billing"},
	}
	for _, tc := range cases {
		if got := ExtractParams(ToolMermaidGraph, tc.text)["topic"]; got != tc.want {
			t.Errorf("topic for %q = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestExtractParamsUnknownTool(t *testing.T) {
	if got := ExtractParams("deploy", "@deploy filename: x hours: 3"); len(got) != 0 {
		t.Fatalf("expected no params, got %v", got)
	}
}

func TestParse(t *testing.T) {
	inv, ok := Parse(`@get_recent_context hours: 2`)
	if !ok || inv.Tool != ToolRecentContext || inv.Params["hours"] != "2" {
		t.Fatalf("unexpected invocation %+v", inv)
	}
	if _, ok := Parse("plain text"); ok {
		t.Fatal("expected no invocation")
	}
}
