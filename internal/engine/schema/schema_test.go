package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "cprqa/internal/core/errors"
)

const masterJSON = `{
  "template_id": "master",
  "template_name": "CanROC Master",
  "missing_marker": ".",
  "pages": [
    {
      "page_id": 1,
      "page_name": "event",
      "page_label": "Event",
      "fields": [
        {"field_id": "pcofile", "label": "PCO File", "type": "text", "required": true, "excel_column": 1},
        {"field_id": "cr_epdt", "label": "Episode Date", "type": "date", "required": true, "excel_column": 2},
        {"field_id": "cr_witn", "label": "Witnessed", "type": "choice", "choices": [{"value": "1"}, {"value": "2"}]}
      ]
    },
    {
      "page_id": 2,
      "page_name": "resus",
      "page_label": "Resuscitation",
      "fields": [
        {"field_id": "cr_shock", "label": "Shocks", "type": "integer", "cno_allowed": true, "cno_default": "9"},
        {"field_id": "cr_shockfl", "label": "Shock CNO", "type": "text", "cno_flag_for": "cr_shock"},
        {"field_id": "cr_rhythm", "label": "Rhythm", "type": "text",
         "dependencies": [
           {"field_id": "cr_witn", "condition": "equals", "value": "1", "action": "show"},
           {"field_id": "cr_shock", "condition": "not_empty", "action": "require"}
         ]}
      ]
    }
  ],
  "completion_rules": {"required_fields": ["pcofile", "cr_epdt"], "minimum_completion_percent": 0.5}
}`

const pcoYAML = `
template_id: pco
template_name: CanROC PCO
pages:
  - page_id: 1
    page_name: minutes
    page_label: Minutes
    auto_filled: true
    fields:
      - field_id: cr_cmprt1
        label: Rate minute 1
        type: float
        decimals: 1
      - field_id: cr_gate
        label: Gate
        type: integer
        dependencies:
          - field_id: cr_cmprt1
            condition: in
            value: [100, 110]
            action: show_and_require
completion_rules:
  required_fields: [cr_cmprt1]
`

func writeSchemas(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "master.json"), []byte(masterJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pco.yaml"), []byte(pcoYAML), 0o644))
	return dir
}

func newCache(dir string) *Cache {
	return NewCache(dir, map[string]string{"master": "master.json", "pco": "pco.yaml"}, ".")
}

func TestCacheGetAndLookups(t *testing.T) {
	cache := newCache(writeSchemas(t))

	def, err := cache.Get("master")
	require.NoError(t, err)
	again, err := cache.Get("master")
	require.NoError(t, err)
	assert.Same(t, def, again, "second Get returns the cached definition")

	assert.Equal(t, 2, def.TotalPages())
	assert.Equal(t, 6, def.TotalFields())
	assert.Equal(t, []string{"pcofile", "cr_epdt", "cr_witn", "cr_shock", "cr_shockfl", "cr_rhythm"}, def.FieldIDs())
	assert.Equal(t, []string{"pcofile", "cr_epdt"}, def.RequiredFields())
	assert.Equal(t, ".", def.MissingMarker())

	field, ok := def.Field("cr_shock")
	require.True(t, ok)
	assert.Equal(t, 2, field.PageID)
	assert.Equal(t, TypeInteger, field.Type)

	page, ok := def.Page(1)
	require.True(t, ok)
	assert.Equal(t, "Event", page.Label)
	_, ok = def.Page(9)
	assert.False(t, ok)

	assert.Len(t, def.Choices("cr_witn"), 2)
	assert.Nil(t, def.Choices("pcofile"))
	assert.Len(t, def.Dependencies("cr_rhythm"), 2)
	assert.True(t, def.IsCnoAllowed("cr_shock"))
	assert.False(t, def.IsCnoAllowed("pcofile"))
	cno, ok := def.CnoDefault("cr_shock")
	assert.True(t, ok)
	assert.Equal(t, "9", cno)
	assert.Equal(t, "cr_shockfl", def.CnoFlagField("cr_shock"))
	assert.Equal(t, "", def.CnoFlagField("pcofile"))
}

func TestCacheYAMLDefinition(t *testing.T) {
	cache := newCache(writeSchemas(t))
	def, err := cache.Get("pco")
	require.NoError(t, err)

	field, ok := def.Field("cr_cmprt1")
	require.True(t, ok)
	assert.Equal(t, 1, field.DecimalPlaces())
	gate, _ := def.Field("cr_gate")
	assert.Equal(t, DefaultDecimals, gate.DecimalPlaces())
	assert.Equal(t, ".", def.MissingMarker(), "configured default applies when the file has no marker")

	show, req := def.EvaluateDependencies("cr_gate", map[string]string{"cr_cmprt1": "110"})
	assert.True(t, show)
	assert.True(t, req)
	show, req = def.EvaluateDependencies("cr_gate", map[string]string{"cr_cmprt1": "90"})
	assert.False(t, show)
	assert.False(t, req)
}

func TestCacheNotFound(t *testing.T) {
	cache := newCache(t.TempDir())

	_, err := cache.Get("master")
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotFound))

	_, err = cache.Get("unknown")
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotFound))
}

func TestLoadMalformed(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		problem string
	}{
		{
			name:    "DuplicateField",
			body:    `{"pages":[{"page_id":1,"fields":[{"field_id":"a"},{"field_id":"a"}]}]}`,
			problem: `duplicate field_id "a"`,
		},
		{
			name:    "UnknownDependencyTarget",
			body:    `{"pages":[{"page_id":1,"fields":[{"field_id":"a","dependencies":[{"field_id":"zz","condition":"equals","value":"1","action":"show"}]}]}]}`,
			problem: `references unknown field "zz"`,
		},
		{
			name:    "InWithoutList",
			body:    `{"pages":[{"page_id":1,"fields":[{"field_id":"a"},{"field_id":"b","dependencies":[{"field_id":"a","condition":"in","value":"1","action":"show"}]}]}]}`,
			problem: "uses 'in' without a list value",
		},
		{
			name:    "UnknownAction",
			body:    `{"pages":[{"page_id":1,"fields":[{"field_id":"a"},{"field_id":"b","dependencies":[{"field_id":"a","condition":"equals","value":"1","action":"toggle"}]}]}]}`,
			problem: `unknown action "toggle"`,
		},
		{
			name:    "ChoiceWithoutChoices",
			body:    `{"pages":[{"page_id":1,"fields":[{"field_id":"a","type":"choice"}]}]}`,
			problem: `choice field "a" declares no choices`,
		},
		{
			name:    "UnknownRequired",
			body:    `{"pages":[{"page_id":1,"fields":[{"field_id":"a"}]}],"completion_rules":{"required_fields":["b"]}}`,
			problem: `required field "b" is not declared`,
		},
		{
			name:    "MinimumOutOfRange",
			body:    `{"pages":[{"page_id":1,"fields":[{"field_id":"a"}]}],"completion_rules":{"minimum_completion_percent":80}}`,
			problem: "must be within [0,1]",
		},
		{
			name:    "TemplateMismatch",
			body:    `{"template_id":"pco","pages":[{"page_id":1,"fields":[{"field_id":"a"}]}]}`,
			problem: `template_id "pco" does not match "master"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.body), ".json", "master", ".")
			require.Error(t, err)
			assert.True(t, domainerrors.IsCode(err, domainerrors.CodeValidationError))
			assert.True(t, hasDetail(domainerrors.Details(err), tc.problem), "details: %v", domainerrors.Details(err))
		})
	}

	_, err := Parse([]byte("{}"), ".toml", "master", ".")
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeValidationError))
}

func hasDetail(details []string, fragment string) bool {
	for _, d := range details {
		if strings.Contains(d, fragment) {
			return true
		}
	}
	return false
}

func TestEvaluateDependencies(t *testing.T) {
	def, err := Parse([]byte(masterJSON), ".json", "master", ".")
	require.NoError(t, err)

	t.Run("UnknownFieldIsVisibleAndOptional", func(t *testing.T) {
		show, req := def.EvaluateDependencies("cr_nope", nil)
		assert.True(t, show)
		assert.False(t, req)
	})

	t.Run("StaticRequired", func(t *testing.T) {
		show, req := def.EvaluateDependencies("pcofile", nil)
		assert.True(t, show)
		assert.True(t, req)
	})

	t.Run("ShowOverwrites", func(t *testing.T) {
		show, _ := def.EvaluateDependencies("cr_rhythm", map[string]string{"cr_witn": "2"})
		assert.False(t, show)
		show, _ = def.EvaluateDependencies("cr_rhythm", map[string]string{"cr_witn": "1"})
		assert.True(t, show)
		show, _ = def.EvaluateDependencies("cr_rhythm", map[string]string{})
		assert.False(t, show, "unset controlling field does not equal the expected value")
	})

	t.Run("RequireOnlyTurnsOn", func(t *testing.T) {
		_, req := def.EvaluateDependencies("cr_rhythm", map[string]string{"cr_witn": "1", "cr_shock": "2"})
		assert.True(t, req)
		_, req = def.EvaluateDependencies("cr_rhythm", map[string]string{"cr_witn": "1", "cr_shock": ""})
		assert.False(t, req)
	})

	t.Run("Idempotent", func(t *testing.T) {
		values := map[string]string{"cr_witn": "1", "cr_shock": "3"}
		s1, r1 := def.EvaluateDependencies("cr_rhythm", values)
		s2, r2 := def.EvaluateDependencies("cr_rhythm", values)
		assert.Equal(t, s1, s2)
		assert.Equal(t, r1, r2)
		assert.Equal(t, map[string]string{"cr_witn": "1", "cr_shock": "3"}, values)
	})
}

func TestLaterRulesWin(t *testing.T) {
	body := `{"pages":[{"page_id":1,"fields":[
	  {"field_id":"a"},{"field_id":"b"},
	  {"field_id":"c","required":true,"dependencies":[
	    {"field_id":"a","condition":"equals","value":"y","action":"show"},
	    {"field_id":"b","condition":"equals","value":"y","action":"hide"},
	    {"field_id":"b","condition":"not_equals","value":"y","action":"show_and_require"}
	  ]}]}]}`
	def, err := Parse([]byte(body), ".json", "t", ".")
	require.NoError(t, err)

	show, req := def.EvaluateDependencies("c", map[string]string{"a": "y", "b": "y"})
	assert.False(t, show)
	assert.False(t, req, "show_and_require can clear the static required flag")

	show, req = def.EvaluateDependencies("c", map[string]string{"a": "n", "b": "n"})
	assert.True(t, show)
	assert.True(t, req)
}

type fakeHeaders struct {
	row []string
	err error
}

func (f fakeHeaders) ReadHeaders(string, string) ([]string, error) {
	return f.row, f.err
}

func TestValidateAgainstTemplate(t *testing.T) {
	dir := writeSchemas(t)
	cache := newCache(dir)
	workbook := filepath.Join(dir, "master.xlsx")
	require.NoError(t, os.WriteFile(workbook, []byte("stub"), 0o644))
	ref := TemplateRef{TemplateID: "master", Workbook: workbook, Sheet: "Master"}

	warnings := cache.ValidateAgainstTemplate(ref, fakeHeaders{row: []string{
		"pcofile", "cr_witn", "cr_epdt", "", "cr_shock", "cr_shockfl", "cr_extra", "notes", "ptid",
	}})
	assert.Equal(t, []string{
		"MISSING: Field 'cr_rhythm' in schema but not in Excel Row 1",
		"EXTRA: Field 'cr_extra' in Excel but not in schema",
		"EXTRA: Field 'ptid' in Excel but not in schema",
		"MOVED: Field 'cr_epdt' expected column 2, found at 3",
	}, warnings)

	missing := cache.ValidateAgainstTemplate(TemplateRef{TemplateID: "master", Workbook: filepath.Join(dir, "nope.xlsx")}, fakeHeaders{})
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0], "CRITICAL: Template file not found:")

	broken := cache.ValidateAgainstTemplate(ref, fakeHeaders{err: errors.New("sheet Master not found")})
	assert.Equal(t, []string{"ERROR: Failed to validate against template: sheet Master not found"}, broken)

	unknown := cache.ValidateAgainstTemplate(TemplateRef{TemplateID: "other", Workbook: workbook}, fakeHeaders{})
	require.Len(t, unknown, 1)
	assert.Contains(t, unknown[0], "CRITICAL: Failed to load schema:")

	all := cache.ValidateAll([]TemplateRef{ref}, fakeHeaders{row: []string{"pcofile", "cr_epdt", "cr_witn", "cr_shock", "cr_shockfl", "cr_rhythm"}})
	assert.Empty(t, all["master"])
}

func TestCacheReloadAndClear(t *testing.T) {
	first := writeSchemas(t)
	cache := newCache(first)
	_, err := cache.Get("master")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Loaded())

	cache.Clear()
	assert.Equal(t, 0, cache.Loaded())

	second := t.TempDir()
	renamed := []byte(`{"template_id":"master","template_name":"Tenant B","pages":[{"page_id":1,"page_name":"p","page_label":"P","fields":[{"field_id":"pcofile"}]}]}`)
	require.NoError(t, os.WriteFile(filepath.Join(second, "master.json"), renamed, 0o644))

	require.NoError(t, cache.Reload(second))
	assert.Equal(t, second, cache.Dir())
	assert.Equal(t, 1, cache.Loaded(), "pco has no file in the new dir and is skipped")
	def, err := cache.Get("master")
	require.NoError(t, err)
	assert.Equal(t, "Tenant B", def.TemplateName)

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "master.json"), []byte(`{"pages":[]}`), 0o644))
	require.Error(t, cache.Reload(bad))
	assert.Equal(t, second, cache.Dir(), "failed reload keeps the previous state")
}

func TestCacheConcurrentReads(t *testing.T) {
	cache := newCache(writeSchemas(t))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				cache.Clear()
				return
			}
			def, err := cache.Get("master")
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			if def.TotalPages() != 2 {
				t.Errorf("unexpected pages %d", def.TotalPages())
			}
		}(i)
	}
	wg.Wait()
}
