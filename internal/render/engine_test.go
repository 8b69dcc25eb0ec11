package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, src string, data map[string]any) string {
	t.Helper()
	tmpl, err := Compile(src)
	require.NoError(t, err)
	out, err := tmpl.Execute(data)
	require.NoError(t, err)
	return out
}

func TestEngine(t *testing.T) {
	stops := []any{
		map[string]any{"facility": "A", "time": "08:00"},
		map[string]any{"facility": "B", "time": ""},
		map[string]any{"facility": "C", "time": "12:00"},
	}
	data := map[string]any{"broker": "ECHO", "rate": "N/A", "pickups": stops, "empty": []any{}}

	tests := []struct {
		name, src, want string
	}{
		{name: "substitution", src: "Hi {{ broker }}!", want: "Hi ECHO!"},
		{name: "undefined", src: "[{{ nope }}][{{ nope.x }}]", want: "[][]"},
		{name: "loop vars", src: "{% for p in pickups %}{{ loop.index }}/{{ loop.length }}{{ p.facility }}{% if not loop.last %},{% endif %}{% endfor %}", want: "1/3A,2/3B,3/3C"},
		{name: "index0 first", src: "{% for p in pickups %}{% if loop.first %}*{% endif %}{{ loop.index0 }}{% endfor %}", want: "*012"},
		{name: "if elif else", src: "{% for p in pickups %}{% if p.facility == 'A' %}a{% elif p.time %}t{% else %}-{% endif %}{% endfor %}", want: "a-t"},
		{name: "and or", src: "{% if broker and rate != 'N/A' %}y{% elif broker or rate %}o{% endif %}", want: "o"},
		{name: "for else", src: "{% for x in empty %}{{ x }}{% else %}none{% endfor %}", want: "none"},
		{name: "loop over undefined", src: "{% for x in missing %}{{ x }}{% endfor %}ok", want: "ok"},
		{name: "filters", src: "{{ broker | lower }} {{ 'abc' | upper }} {{ '  x ' | trim }} {{ pickups | length }}", want: "echo ABC x 3"},
		{name: "default", src: "{{ missing | default('n/a') }} {{ broker | d('z') }}", want: "n/a ECHO"},
		{name: "replace and concat", src: "{{ broker | replace('E', 'e') ~ '!' }}", want: "eCHO!"},
		{name: "index access", src: "{{ pickups[0].facility }}{{ pickups[-1].facility }}{{ pickups.1.facility }}", want: "ACB"},
		{name: "first last filter", src: "{{ (pickups | first).facility }}{{ (pickups | last).facility }}", want: "AC"},
		{name: "comments", src: "a{# hidden {{ broker }} #}b", want: "ab"},
		{name: "whitespace control", src: "x  \n  {%- if true -%}  \n  y  {%- endif %}", want: "xy"},
		{name: "output trim", src: "a \n {{- broker -}} \n b", want: "aECHOb"},
		{name: "string with braces", src: "{{ '}}' }}", want: "}}"},
		{name: "bool render", src: "{{ true }} {{ none }}", want: "True "},
		{name: "nested loops shadow", src: "{% for a in pickups %}{% for b in pickups %}{% if loop.first %}{{ a.facility }}{% endif %}{% endfor %}{% endfor %}", want: "ABC"},
		{name: "title capitalize", src: "{{ 'ryan TRANSPORT' | title }} {{ 'hello WORLD' | capitalize }}", want: "Ryan Transport Hello world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, execute(t, tt.src, data))
		})
	}
}

func TestEngine_CompileErrorsCarryLine(t *testing.T) {
	_, err := Compile("line one\nline two\n{% frobnicate %}")
	require.Error(t, err)
	assert.Equal(t, "line 3: unknown tag 'frobnicate'", err.Error())

	_, err = Compile("{% include 'x' %}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestEngine_RuntimeErrors(t *testing.T) {
	tmpl, err := Compile("{% for c in broker %}{% endfor %}")
	require.NoError(t, err)
	_, err = tmpl.Execute(map[string]any{"broker": "ECHO"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not iterable")

	tmpl, err = Compile("{{ 5 | length }}")
	require.NoError(t, err)
	_, err = tmpl.Execute(nil)
	assert.Error(t, err)
}

func TestEngine_NestingLimit(t *testing.T) {
	src := ""
	for i := 0; i < maxNesting; i++ {
		src += "{% if true %}"
	}
	src += "deep"
	for i := 0; i < maxNesting; i++ {
		src += "{% endif %}"
	}
	assert.Equal(t, "deep", execute(t, src, nil))

	_, err := Compile("{% if true %}" + src + "{% endif %}")
	assert.Error(t, err)
}
