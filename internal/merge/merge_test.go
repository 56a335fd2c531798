package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/config-overlay/internal/settings"
	"github.com/eugenenazirov/config-overlay/internal/store"
)

const baseYAML = `
version: 1.2.1
interface:
  sidePanel: true
  presets: true
registration:
  socialLogins: [github, google]
endpoints:
  custom:
    - name: groq
      models:
        default: [llama3]
`

func mustTree(t *testing.T, doc string) settings.Tree {
	t.Helper()
	var tree settings.Tree
	require.NoError(t, yaml.Unmarshal([]byte(doc), &tree))
	return tree
}

func TestMergeObjectsRecurse(t *testing.T) {
	t.Parallel()

	base := mustTree(t, baseYAML)
	overrides := settings.Tree{}
	require.NoError(t, settings.InterfaceSidePanel.Set(overrides, false))

	merged := Merge(base, overrides)

	side, _ := settings.InterfaceSidePanel.Get(merged)
	assert.False(t, side)
	presets, ok := settings.InterfacePresets.Get(merged)
	require.True(t, ok)
	assert.True(t, presets)
	_, ok = merged.Get("version")
	assert.True(t, ok)
}

func TestMergeArraysReplacedWholesale(t *testing.T) {
	t.Parallel()

	base := mustTree(t, baseYAML)
	overrides := settings.Tree{}
	require.NoError(t, overrides.Set("registration.socialLogins", settings.StringArray("saml")))

	merged := Merge(base, overrides)
	got, _ := merged.Get("registration.socialLogins")
	assert.True(t, settings.StringArray("saml").Equal(got), got.String())
}

func TestMergeNullKeepsBase(t *testing.T) {
	t.Parallel()

	base := mustTree(t, baseYAML)
	overrides := settings.Tree{
		"version":   settings.Null(),
		"interface": settings.Object(settings.Tree{"presets": settings.Null()}),
		"brandNew":  settings.Object(settings.Tree{"x": settings.Null(), "y": settings.Int(1)}),
	}

	merged := Merge(base, overrides)
	v, ok := merged.Get("version")
	require.True(t, ok)
	assert.Equal(t, settings.KindString, v.Kind())
	presets, _ := settings.InterfacePresets.Get(merged)
	assert.True(t, presets)
	brandNew, _ := merged["brandNew"].AsObject()
	assert.NotContains(t, brandNew, "x")
}

func TestMergeScalarReplacesObjectAndBack(t *testing.T) {
	t.Parallel()

	base := settings.Tree{"a": settings.Object(settings.Tree{"b": settings.Int(1)}), "c": settings.String("s")}
	overrides := settings.Tree{"a": settings.Bool(false), "c": settings.Object(settings.Tree{"d": settings.Int(2)})}

	merged := Merge(base, overrides)
	assert.Equal(t, settings.KindBool, merged["a"].Kind())
	d, ok := merged.Get("c.d")
	require.True(t, ok)
	n, _ := d.AsInt()
	assert.Equal(t, int64(2), n)
}

func TestMergeIsPureAndIdempotent(t *testing.T) {
	t.Parallel()

	base := mustTree(t, baseYAML)
	baseCopy := base.Clone()
	overrides := settings.Tree{}
	require.NoError(t, settings.AppTitle.Set(overrides, "Acme"))
	require.NoError(t, settings.InterfaceSidePanel.Set(overrides, false))
	overridesCopy := overrides.Clone()

	once := Merge(base, overrides)
	twice := Merge(once, overrides)

	assert.True(t, once.Equal(twice))
	assert.True(t, base.Equal(baseCopy))
	assert.True(t, overrides.Equal(overridesCopy))
}

func TestMergeEmptyOverridesEqualsBase(t *testing.T) {
	t.Parallel()

	base := mustTree(t, baseYAML)
	assert.True(t, base.Equal(Merge(base, settings.Tree{})))
	assert.True(t, base.Equal(Merge(base, nil)))
}

func TestLoadBaseMissingFile(t *testing.T) {
	t.Parallel()

	tree, err := LoadBase(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestLoadBaseInvalidYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: [unclosed"), 0o644))
	_, err := LoadBase(path)
	assert.Error(t, err)
}

type docSource struct {
	doc   store.Document
	err   error
	calls int
}

func (s *docSource) GetDocument(context.Context) (store.Document, error) {
	s.calls++
	return s.doc, s.err
}

type recorderFunc func(time.Duration, error)

func (f recorderFunc) ObserveRegeneration(d time.Duration, err error) { f(d, err) }

func newEngine(t *testing.T, source DocumentSource, opts ...EngineOption) (*Engine, Paths) {
	t.Helper()
	dir := t.TempDir()
	paths := Paths{
		Base:    filepath.Join(dir, "librechat.yaml"),
		Output:  filepath.Join(dir, "librechat.merged.yaml"),
		Overlay: filepath.Join(dir, "admin-overrides.yaml"),
	}
	require.NoError(t, os.WriteFile(paths.Base, []byte(baseYAML), 0o644))
	return NewEngine(paths, source, zaptest.NewLogger(t), opts...), paths
}

func readTree(t *testing.T, path string) settings.Tree {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return mustTree(t, string(data))
}

func TestEngineExplicitOverridesNeverRefetch(t *testing.T) {
	t.Parallel()

	stale := settings.Tree{"appTitle": settings.String("stale")}
	source := &docSource{doc: store.Document{Overrides: stale}}
	engine, paths := newEngine(t, source)

	fresh := settings.Tree{"appTitle": settings.String("fresh")}
	merged, err := engine.Generate(context.Background(), &fresh)
	require.NoError(t, err)
	assert.Zero(t, source.calls)

	title, _ := settings.AppTitle.Get(merged)
	assert.Equal(t, "fresh", title)

	onDisk := readTree(t, paths.Output)
	title, _ = settings.AppTitle.Get(onDisk)
	assert.Equal(t, "fresh", title)

	overlay := readTree(t, paths.Overlay)
	assert.True(t, fresh.Equal(overlay))
}

func TestEngineLoadsDocumentWhenNoOverrides(t *testing.T) {
	t.Parallel()

	source := &docSource{doc: store.Document{Overrides: settings.Tree{"appTitle": settings.String("stored")}}}
	engine, paths := newEngine(t, source)

	_, err := engine.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)

	title, _ := settings.AppTitle.Get(readTree(t, paths.Output))
	assert.Equal(t, "stored", title)
}

func TestEngineFailureMarksStaleAndRetries(t *testing.T) {
	t.Parallel()

	var outcomes []error
	source := &docSource{err: errors.New("db down")}
	engine, paths := newEngine(t, source, WithRecorder(recorderFunc(func(_ time.Duration, err error) {
		outcomes = append(outcomes, err)
	})))

	_, err := engine.Generate(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, engine.Stale())
	_, statErr := os.Stat(paths.Output)
	assert.True(t, os.IsNotExist(statErr))

	source.err = nil
	source.doc = store.Document{Overrides: settings.Tree{}}
	require.NoError(t, engine.EnsureFresh(context.Background()))
	assert.False(t, engine.Stale())
	require.NoError(t, engine.EnsureFresh(context.Background()))
	assert.Equal(t, 2, source.calls)

	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0])
	assert.NoError(t, outcomes[1])
}

func TestEngineSkipsSupersededDocument(t *testing.T) {
	t.Parallel()

	engine, paths := newEngine(t, nil)
	ctx := context.Background()

	newer := store.Document{Generation: 2, Overrides: settings.Tree{
		"appTitle":     settings.String("A"),
		"primaryColor": settings.String("#fff"),
	}}
	older := store.Document{Generation: 1, Overrides: settings.Tree{"appTitle": settings.String("A")}}

	_, err := engine.GenerateDocument(ctx, newer)
	require.NoError(t, err)

	merged, err := engine.GenerateDocument(ctx, older)
	require.NoError(t, err)
	assert.Nil(t, merged)
	assert.Equal(t, uint64(2), engine.Generation())

	assert.True(t, newer.Overrides.Equal(readTree(t, paths.Overlay)))
	color, ok := readTree(t, paths.Output).Get("primaryColor")
	require.True(t, ok)
	s, _ := color.AsString()
	assert.Equal(t, "#fff", s)
}

func TestEngineSourceLoadAdvancesGeneration(t *testing.T) {
	t.Parallel()

	source := &docSource{doc: store.Document{Generation: 5, Overrides: settings.Tree{}}}
	engine, paths := newEngine(t, source)
	ctx := context.Background()

	_, err := engine.Generate(ctx, nil)
	require.NoError(t, err)

	_, err = engine.GenerateDocument(ctx, store.Document{Generation: 4, Overrides: settings.Tree{"appTitle": settings.String("old")}})
	require.NoError(t, err)

	_, ok := settings.AppTitle.Get(readTree(t, paths.Output))
	assert.False(t, ok)
}
