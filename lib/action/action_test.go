// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"reflect"
	"strings"
	"testing"
)

const document = `Setting up the project.

<forgeArtifact id="demo-app" title="Demo App">
<forgeAction type="file" filePath="/package.json">
{"name": "demo-app"}
</forgeAction>
<forgeAction type="file" filePath="src/index.js">
console.log(1)
</forgeAction>
<forgeAction type="shell">
npm install --no-audit
</forgeAction>
</forgeArtifact>`

func TestParse(t *testing.T) {
	t.Parallel()

	artifact, warnings := Parse(document)
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v, want none", warnings)
	}
	if artifact.ID != "demo-app" || artifact.Title != "Demo App" {
		t.Errorf("identity = %q/%q, want demo-app/Demo App", artifact.ID, artifact.Title)
	}
	if len(artifact.Actions) != 3 {
		t.Fatalf("action count = %d, want 3", len(artifact.Actions))
	}

	// Leading separator stripped during normalization.
	file := artifact.Actions[0].(FileAction)
	if file.Path != "package.json" {
		t.Errorf("Actions[0].Path = %q, want package.json", file.Path)
	}

	shell := artifact.Actions[2].(ShellAction)
	if shell.Command != "npm" {
		t.Errorf("shell.Command = %q, want npm", shell.Command)
	}
	if !reflect.DeepEqual(shell.Args, []string{"install", "--no-audit"}) {
		t.Errorf("shell.Args = %v", shell.Args)
	}
}

func TestParseDeterministic(t *testing.T) {
	t.Parallel()

	first, firstWarnings := Parse(document)
	second, secondWarnings := Parse(document)
	if !reflect.DeepEqual(first, second) {
		t.Error("two parses of the same document differ")
	}
	if !reflect.DeepEqual(firstWarnings, secondWarnings) {
		t.Error("warning lists differ between parses")
	}
}

func TestParseIncrementalPrefixes(t *testing.T) {
	t.Parallel()

	// Growing-buffer parses must agree with the one-shot parse on
	// every action they report, for every chunk boundary.
	full, _ := Parse(document)
	for split := 0; split <= len(document); split++ {
		partial, _ := Parse(document[:split])
		if len(partial.Actions) > len(full.Actions) {
			t.Fatalf("split %d: more actions than full parse", split)
		}
		for i := range partial.Actions {
			if !reflect.DeepEqual(partial.Actions[i], full.Actions[i]) {
				t.Fatalf("split %d: action %d = %+v, want %+v", split, i, partial.Actions[i], full.Actions[i])
			}
		}
	}
}

func TestBuildWarnings(t *testing.T) {
	t.Parallel()

	text := `<forgeArtifact id="a" title="A">
<forgeAction type="database">
CREATE TABLE t;
</forgeAction>
<forgeAction type="file" filePath="">
orphaned
</forgeAction>
<forgeAction type="file" filePath="ok.txt">
fine
</forgeAction>
</forgeArtifact>`

	artifact, warnings := Parse(text)
	if len(artifact.Actions) != 1 {
		t.Fatalf("action count = %d, want 1", len(artifact.Actions))
	}
	if len(warnings) != 2 {
		t.Fatalf("warning count = %d, want 2: %v", len(warnings), warnings)
	}
	if warnings[0].Index != 0 || !strings.Contains(warnings[0].Message, "database") {
		t.Errorf("warnings[0] = %v", warnings[0])
	}
	if warnings[1].Index != 1 {
		t.Errorf("warnings[1].Index = %d, want 1", warnings[1].Index)
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"a/b.ts", "a/b.ts", true},
		{"/a/b.ts", "a/b.ts", true},
		{"//a//b.ts", "a/b.ts", true},
		{"./src/main.js", "src/main.js", true},
		{"", "", false},
		{"/", "", false},
		{"..", "", false},
		{"../escape.txt", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizePath(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("NormalizePath(%q) = %q/%v, want %q/%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestSplitCommandLine(t *testing.T) {
	t.Parallel()

	command, args := splitCommandLine(`node -e "console.log('hi there')"`)
	if command != "node" {
		t.Errorf("command = %q, want node", command)
	}
	if !reflect.DeepEqual(args, []string{"-e", "console.log('hi there')"}) {
		t.Errorf("args = %v", args)
	}
}

func TestFiles(t *testing.T) {
	t.Parallel()

	artifact, _ := Parse(document)
	files := Files(artifact)
	if len(files) != 2 {
		t.Fatalf("file count = %d, want 2", len(files))
	}

	if files[0].ID != "demo-app-file-0" || files[1].ID != "demo-app-file-1" {
		t.Errorf("ids = %q, %q", files[0].ID, files[1].ID)
	}
	if files[1].Name != "index.js" || files[1].Path != "src/index.js" {
		t.Errorf("files[1] = %+v", files[1])
	}
	if files[1].Language != "javascript" {
		t.Errorf("files[1].Language = %q, want javascript", files[1].Language)
	}
	if files[0].Language != "json" {
		t.Errorf("files[0].Language = %q, want json", files[0].Language)
	}
}
