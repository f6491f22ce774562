package main

import "testing"

func TestViolationReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		importer string
		imported string
		testOnly bool
		wantHit  bool
	}{
		{
			name:     "contract importing internal",
			importer: "sandwich/pkg/sandwich",
			imported: "sandwich/internal/kernel",
			wantHit:  true,
		},
		{
			name:     "kernel importing driver",
			importer: "sandwich/internal/kernel",
			imported: "sandwich/internal/driver/discord",
			wantHit:  true,
		},
		{
			name:     "module importing kernel",
			importer: "sandwich/modules/askai",
			imported: "sandwich/internal/kernel",
			wantHit:  true,
		},
		{
			name:     "module test importing moduletest",
			importer: "sandwich/modules/askai",
			imported: "sandwich/internal/moduletest",
			testOnly: true,
		},
		{
			name:     "module runtime importing moduletest",
			importer: "sandwich/modules/askai",
			imported: "sandwich/internal/moduletest",
			wantHit:  true,
		},
		{
			name:     "module importing another module",
			importer: "sandwich/modules/askai",
			imported: "sandwich/modules/whitelist",
			wantHit:  true,
		},
		{
			name:     "module test using another module as a fixture",
			importer: "sandwich/modules/utility",
			imported: "sandwich/modules/whitelist",
			testOnly: true,
		},
		{
			name:     "module importing contract",
			importer: "sandwich/modules/gitlines",
			imported: "sandwich/pkg/sandwich",
		},
		{
			name:     "module importing llm config",
			importer: "sandwich/modules/askai",
			imported: "sandwich/pkg/llm/config",
		},
		{
			name:     "llm importing internal",
			importer: "sandwich/pkg/llm/providers/openai",
			imported: "sandwich/internal/replycache",
			wantHit:  true,
		},
		{
			name:     "bootstrap importing everything",
			importer: "sandwich/cmd/bot",
			imported: "sandwich/internal/driver",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			reason := violationReason(testCase.importer, testCase.imported, testCase.testOnly)
			if (reason != "") != testCase.wantHit {
				t.Fatalf("violationReason() = %q, want hit %v", reason, testCase.wantHit)
			}
		})
	}
}

func TestSplitTestVariant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input       string
		wantPath    string
		wantVariant bool
	}{
		{input: "sandwich/modules/askai", wantPath: "sandwich/modules/askai"},
		{input: "sandwich/modules/askai [sandwich/modules/askai.test]", wantPath: "sandwich/modules/askai", wantVariant: true},
		{input: "sandwich/modules/askai.test", wantPath: "sandwich/modules/askai", wantVariant: true},
		{input: "sandwich/modules/askai_test [sandwich/modules/askai.test]", wantPath: "sandwich/modules/askai", wantVariant: true},
	}

	for _, testCase := range tests {
		path, variant := splitTestVariant(testCase.input)
		if path != testCase.wantPath || variant != testCase.wantVariant {
			t.Fatalf("splitTestVariant(%q) = %q, %v", testCase.input, path, variant)
		}
	}
}
