package gitlines

import (
	"archive/zip"
	"bytes"
	"testing"
)

func TestCountLines(t *testing.T) {
	t.Parallel()

	python := supportedSyntax["py"]
	tests := []struct {
		name    string
		content string
		want    lineCount
	}{
		{
			name:    "code and hash comments",
			content: "import os\n# comment\n\nprint(os.name)\n",
			want:    lineCount{code: 2, comments: 1},
		},
		{
			name:    "single line docstring",
			content: "def f():\n    \"\"\"Docstring.\"\"\"\n    return 1\n",
			want:    lineCount{code: 2, comments: 1},
		},
		{
			name:    "block docstring closing delimiter counts as code",
			content: "'''\nmodule docs\nmore docs\n'''\nx = 1\n",
			want:    lineCount{code: 2, comments: 3},
		},
		{
			name:    "block closed by trailing delimiter",
			content: "\"\"\"Summary\nbody\nend.\"\"\"\ny = 2\n",
			want:    lineCount{code: 1, comments: 3},
		},
		{
			name:    "crlf endings",
			content: "a = 1\r\n# b\r\n\r\nc = 3\r\n",
			want:    lineCount{code: 2, comments: 1},
		},
		{
			name:    "whitespace only line counts as code",
			content: "a = 1\n   \n",
			want:    lineCount{code: 2},
		},
		{
			name: "empty",
			want: lineCount{},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := countLines(testCase.content, python)
			if got != testCase.want {
				t.Fatalf("count = %+v, want %+v", got, testCase.want)
			}
		})
	}
}

func TestCountArchive(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string]string{
		"repo-master/":             "",
		"repo-master/main.py":      "# entry\nprint(1)\n",
		"repo-master/lib/fast.pyx": "cdef int x = 1\n",
		"repo-master/happy":        "not python\n",
		"repo-master/README.md":    "# Title\n",
	})

	counts, err := countArchive(archive, []string{"py", "pyx"})
	if err != nil {
		t.Fatalf("count archive failed: %v", err)
	}
	if counts["py"] != (lineCount{code: 1, comments: 1}) {
		t.Fatalf("py = %+v", counts["py"])
	}
	if counts["pyx"] != (lineCount{code: 1}) {
		t.Fatalf("pyx = %+v", counts["pyx"])
	}

	if _, err := countArchive([]byte("not a zip"), []string{"py"}); err == nil {
		t.Fatal("expected invalid archive error")
	}
}

func TestParseRepoRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want repoRef
	}{
		{raw: "owner/repo", want: repoRef{repo: "owner/repo", branch: "master"}},
		{raw: "owner/repo/dev", want: repoRef{repo: "owner/repo", branch: "dev"}},
		{raw: "/owner/repo/", want: repoRef{repo: "owner/repo", branch: "master"}},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.raw, func(t *testing.T) {
			t.Parallel()

			if got := parseRepoRef(testCase.raw, "master"); got != testCase.want {
				t.Fatalf("ref = %+v, want %+v", got, testCase.want)
			}
		})
	}
}

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	for name, content := range files {
		file, err := writer.Create(name)
		if err != nil {
			t.Fatalf("create %s failed: %v", name, err)
		}
		if _, err := file.Write([]byte(content)); err != nil {
			t.Fatalf("write %s failed: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close archive failed: %v", err)
	}

	return buffer.Bytes()
}
