// Package testutil is shared test setup. Setup mirrors what the server
// does at startup: it loads .env.development from the module root and
// persists every eval result, so tests that evaluate agents can inspect
// the stored scores.
package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/klubi/stratus/internal/config"
	"github.com/klubi/stratus/internal/evals"
	"github.com/klubi/stratus/internal/store"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// EnvFile is loaded from the module root by Setup.
const EnvFile = ".env.development"

var evalStore store.Store

// Setup loads EnvFile, attaches eval listeners to a memory store and runs
// the tests. Use it from TestMain:
//
//	func TestMain(m *testing.M) { os.Exit(testutil.Setup(m)) }
func Setup(m *testing.M) int {
	if err := LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "testutil: %v\n", err)
		return 1
	}

	evalStore = store.NewMemoryStore()
	detach := evals.AttachListeners(evalStore, zap.NewNop())
	defer detach()
	defer evalStore.Close()

	return m.Run()
}

// LoadEnv loads EnvFile from the module root. A missing file is not an
// error; variables already set in the environment win.
func LoadEnv() error {
	root, err := ModuleRoot()
	if err != nil {
		return err
	}
	return config.LoadDotEnv(root, EnvFile)
}

// ModuleRoot walks up from the working directory to the nearest go.mod.
func ModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("testutil: go.mod not found above working directory")
		}
		dir = parent
	}
}

// EvalResults returns what the Setup listeners stored for agentName.
func EvalResults(t testing.TB, agentName string) []*v1alpha1.EvalResult {
	t.Helper()
	if evalStore == nil {
		t.Fatal("testutil: EvalResults called without Setup in TestMain")
	}
	items, err := evalStore.List(store.KindPrefix(v1alpha1.KindEvalResult, evals.Slug(agentName)),
		func() interface{} { return &v1alpha1.EvalResult{} })
	if err != nil {
		t.Fatalf("testutil: listing eval results: %v", err)
	}
	out := make([]*v1alpha1.EvalResult, len(items))
	for i, item := range items {
		out[i] = item.(*v1alpha1.EvalResult)
	}
	return out
}

// Logger returns a logger that writes through t.
func Logger(t testing.TB) *zap.Logger {
	return zaptest.NewLogger(t)
}

// RequireLLM skips the test unless a provider API key is configured.
func RequireLLM(t testing.TB) {
	t.Helper()
	if os.Getenv("ANTHROPIC_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("no ANTHROPIC_API_KEY or OPENAI_API_KEY; put one in " + EnvFile)
	}
}
