package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTripIsMinimal(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `null`, want: `null`},
		{in: ` true `, want: `true`},
		{in: `{ "counter" : 3 }`, want: `{"counter":3}`},
		{in: `{"b":1,"a":2}`, want: `{"b":1,"a":2}`},
		{in: `[1, 2.50, -3e10, "x"]`, want: `[1,2.50,-3e10,"x"]`},
		{in: `{"nested":{"list":[],"obj":{}}}`, want: `{"nested":{"list":[],"obj":{}}}`},
		{in: `"<a&b>"`, want: `"<a&b>"`},
		{in: `"line\nbreak\t\"q\" \u0001"`, want: `"line\nbreak\t\"q\" \u0001"`},
		{in: `12345678901234567890123`, want: `12345678901234567890123`},
		{in: `{"k":1,"k":2}`, want: `{"k":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := Parse([]byte(tt.in))
			require.NoError(t, err)
			out := d.AppendJSON(nil)
			assert.Equal(t, tt.want, string(out))
			assert.True(t, json.Valid(out))
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{``, `{`, `{"a":}`, `[1,]`, `{} {}`, `1 x`, `nul`} {
		_, err := Parse([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestConstructors(t *testing.T) {
	n, err := Number("1.5e3")
	require.NoError(t, err)

	d := Object(
		Member{Key: "null", Value: Null()},
		Member{Key: "bool", Value: Bool(true)},
		Member{Key: "int", Value: Int(-7)},
		Member{Key: "float", Value: Float(0.25)},
		Member{Key: "num", Value: n},
		Member{Key: "str", Value: String("hi")},
		Member{Key: "arr", Value: Array(Int(1), String("two"))},
	)
	assert.Equal(t, `{"null":null,"bool":true,"int":-7,"float":0.25,"num":1.5e3,"str":"hi","arr":[1,"two"]}`, d.String())
	assert.Equal(t, []string{"null", "bool", "int", "float", "num", "str", "arr"}, d.Keys())
	assert.Equal(t, 7, d.Len())

	for _, bad := range []string{"", " 1", "1 ", "abc", "01", "NaN", `"1"`} {
		_, err := Number(bad)
		assert.Error(t, err, "Number(%q)", bad)
	}
}

func TestFloatNonFiniteIsNull(t *testing.T) {
	zero := 0.0
	assert.True(t, Float(1/zero).IsNull())
	assert.True(t, Float(zero/zero).IsNull())
}

func TestTypedAccessors(t *testing.T) {
	d, err := Parse([]byte(`{"i":4,"f":4.0,"e":1e3,"frac":2.5,"s":"x","b":false,"a":[10,{"deep":true}]}`))
	require.NoError(t, err)

	i, err := d.GetInt64("i")
	require.NoError(t, err)
	assert.Equal(t, int64(4), i)

	i, err = d.GetInt64("f")
	require.NoError(t, err)
	assert.Equal(t, int64(4), i)

	i, err = d.GetInt64("e")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), i)

	_, err = d.GetInt64("frac")
	assert.ErrorIs(t, err, ErrWrongType)

	f, err := d.GetFloat64("frac")
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	s, err := d.GetString("s")
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	b, err := d.GetBool("b")
	require.NoError(t, err)
	assert.False(t, b)

	deep, err := d.GetBool("a", "1", "deep")
	require.NoError(t, err)
	assert.True(t, deep)

	num, err := d.Lookup("a", "0")
	require.NoError(t, err)
	text, err := num.AsNumber()
	require.NoError(t, err)
	assert.Equal(t, json.Number("10"), text)
}

func TestFieldErrors(t *testing.T) {
	d, err := Parse([]byte(`{"s":"x","a":[1]}`))
	require.NoError(t, err)

	_, err = d.GetInt64("missing")
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Missing)
	assert.Equal(t, "missing", fe.Path)
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Equal(t, "field 'missing' missing", err.Error())

	_, err = d.GetInt64("s")
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "s", fe.Path)
	assert.Equal(t, KindString, fe.Got)
	assert.ErrorIs(t, err, ErrWrongType)
	assert.Equal(t, "field 's' is string, want integer", err.Error())

	_, err = d.Lookup("a", "5")
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "a.5", fe.Path)
	assert.True(t, fe.Missing)

	_, err = d.Lookup("s", "inner")
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "s", fe.Path)
	assert.Equal(t, "object", fe.Want)

	_, err = Null().Field("x")
	assert.ErrorIs(t, err, ErrWrongType)
	assert.False(t, Null().Has("x"))
}

func TestWithIsCopyOnWrite(t *testing.T) {
	orig, err := Parse([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)

	changed, err := orig.With("a", Int(9))
	require.NoError(t, err)
	added, err := orig.With("c", Int(3))
	require.NoError(t, err)
	removed, err := orig.Without("a")
	require.NoError(t, err)

	assert.Equal(t, `{"a":1,"b":2}`, orig.String())
	assert.Equal(t, `{"a":9,"b":2}`, changed.String())
	assert.Equal(t, `{"a":1,"b":2,"c":3}`, added.String())
	assert.Equal(t, `{"b":2}`, removed.String())

	fromNull, err := Null().With("x", Bool(true))
	require.NoError(t, err)
	assert.Equal(t, `{"x":true}`, fromNull.String())

	_, err = Int(1).With("x", Null())
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestAppendIsCopyOnWrite(t *testing.T) {
	orig := Array(Int(1))
	grown, err := orig.Append(Int(2), Int(3))
	require.NoError(t, err)
	assert.Equal(t, `[1]`, orig.String())
	assert.Equal(t, `[1,2,3]`, grown.String())

	items, err := grown.Items()
	require.NoError(t, err)
	items[0] = String("mutated")
	assert.Equal(t, `[1,2,3]`, grown.String())
}

func TestEqual(t *testing.T) {
	a, _ := Parse([]byte(`{"x":1,"y":[true,null,"s"]}`))
	b, _ := Parse([]byte(`{"y":[true,null,"s"],"x":1.0}`))
	c, _ := Parse([]byte(`{"x":2,"y":[true,null,"s"]}`))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, Int(1).Equal(String("1")))
}

func TestInvalidUTF8IsReplaced(t *testing.T) {
	d := String("a\xffb")
	assert.Equal(t, "\"a�b\"", d.String())
	assert.True(t, json.Valid([]byte(d.String())))
}

func TestDocumentJSONInterop(t *testing.T) {
	type envelope struct {
		State Document `json:"state"`
	}

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(`{"state":{"counter":3}}`), &env))
	n, err := env.State.GetInt64("counter")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	out, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Equal(t, `{"state":{"counter":3}}`, string(out))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "object", KindObject.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
