package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Args
	}{
		{"empty", "", nil},
		{"whitespace only", "      ", nil},
		{"single value", "12", Args{{Value: "12", Index: 0}}},
		{"single string", "hello world", Args{{Value: "hello world", Index: 0}}},
		{"two values", "hello  , world", Args{
			{Value: "hello", Index: 0},
			{Value: "world", Index: 1},
		}},
		{"named", "bob = 42", Args{{Name: "bob", Value: "42", Index: 0}}},
		{"quoted commas", `12, "Buy, buy, buy", 42`, Args{
			{Value: "12", Index: 0},
			{Value: "Buy, buy, buy", Index: 1},
			{Value: "42", Index: 2},
		}},
		{"unclosed quote", `12, "Buy, 42`, Args{
			{Value: "12", Index: 0},
			{Value: `"Buy`, Index: 1},
			{Value: "42", Index: 2},
		}},
		{"named quoted", `bob="quoted args 12"`, Args{{Name: "bob", Value: "quoted args 12", Index: 0}}},
		{"named unclosed quote", `bob="open`, Args{{Name: "bob", Value: "open", Index: 0}}},
		{"named empty quote is dropped", `12, tag="", 42`, Args{
			{Value: "12", Index: 0},
			{Value: "42", Index: 2},
		}},
		{"mixture", `12, bob="quoted args 12", fish, "more fish", end=42`, Args{
			{Value: "12", Index: 0},
			{Name: "bob", Value: "quoted args 12", Index: 1},
			{Value: "fish", Index: 2},
			{Value: "more fish", Index: 3},
			{Name: "end", Value: "42", Index: 4},
		}},
		{"blank slot keeps its index", "12, , 42", Args{
			{Value: "12", Index: 0},
			{Value: "42", Index: 2},
		}},
		{"leading quoted comma", `"a, b", c`, Args{
			{Value: "a, b", Index: 0},
			{Value: "c", Index: 1},
		}},
		{"absolute offset", "buy, @6250.5, 1btc", Args{
			{Value: "buy", Index: 0},
			{Value: "@6250.5", Index: 1},
			{Value: "1btc", Index: 2},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseArguments(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseArguments(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestAssign(t *testing.T) {
	schema := Schema{{"duration", "10s"}}

	t.Run("no arguments keeps defaults", func(t *testing.T) {
		assert.Equal(t, Params{"duration": "10s"}, Args(nil).Assign(schema))
	})

	t.Run("positional value", func(t *testing.T) {
		args := Args{{Value: "12", Index: 0}}
		assert.Equal(t, Params{"duration": "12"}, args.Assign(schema))
	})

	t.Run("named value", func(t *testing.T) {
		args := Args{{Name: "duration", Value: "12", Index: 0}}
		assert.Equal(t, Params{"duration": "12"}, args.Assign(schema))
	})

	t.Run("named value is case insensitive", func(t *testing.T) {
		args := Args{{Name: "DURATION", Value: "12", Index: 0}}
		assert.Equal(t, Params{"duration": "12"}, args.Assign(schema))
	})

	t.Run("named beats earlier positional", func(t *testing.T) {
		args := Args{
			{Value: "23", Index: 0},
			{Name: "duration", Value: "12", Index: 1},
		}
		assert.Equal(t, Params{"duration": "12"}, args.Assign(schema))
	})

	t.Run("complex combination", func(t *testing.T) {
		schema := Schema{{"duration", "10s"}, {"example", ""}, {"test", "hello"}}
		args := Args{
			{Value: "23", Index: 0},
			{Name: "test", Value: "12", Index: 1},
			{Name: "example", Value: "fish", Index: 2},
		}
		assert.Equal(t, Params{"duration": "23", "example": "fish", "test": "12"}, args.Assign(schema))
	})

	t.Run("positional binds by declared order", func(t *testing.T) {
		schema := Schema{{"side", "buy"}, {"offset", "0"}, {"amount", "0"}}
		args := ParseArguments("sell, amount=2, 1%")
		p := args.Assign(schema)
		assert.Equal(t, "sell", p.Get("side"))
		assert.Equal(t, "2", p.Get("amount"))
		assert.Equal(t, "0", p.Get("offset"))
	})

	t.Run("named beats later positional", func(t *testing.T) {
		args := Args{
			{Name: "duration", Value: "12", Index: 1},
			{Value: "23", Index: 0},
		}
		assert.Equal(t, Params{"duration": "12"}, args.Assign(schema))
	})

	t.Run("empty quoted tag keeps the default", func(t *testing.T) {
		schema := Schema{{"side", "buy"}, {"tag", "default"}}
		p := ParseArguments(`sell, tag=""`).Assign(schema)
		assert.Equal(t, "sell", p.Get("side"))
		assert.Equal(t, "default", p.Get("tag"))
	})
}

func TestParamsConversions(t *testing.T) {
	p := Params{"count": "10abc", "price": "6500.5", "flag": " TRUE ", "junk": "x"}
	assert.Equal(t, 10, p.Int("count"))
	assert.Equal(t, 6500.5, p.Float("price"))
	assert.True(t, p.Bool("flag"))
	assert.Zero(t, p.Float("junk"))
	assert.Zero(t, p.Float("missing"))
}

func TestNamed(t *testing.T) {
	args := Named("side", "buy", "offset", "@100")
	assert.Equal(t, Args{
		{Name: "side", Value: "buy", Index: 0},
		{Name: "offset", Value: "@100", Index: 1},
	}, args)
}
