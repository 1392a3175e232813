package coup

import (
	"encoding/json"
	"testing"

	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeckHoldsThreeOfEachRole(t *testing.T) {
	d := NewDeck(SystemShuffler)
	require.Equal(t, DeckSize, d.Len())

	counts := map[Influence]int{}
	for _, card := range d {
		counts[card]++
	}
	for _, role := range Roles {
		assert.Equal(t, CopiesPerRole, counts[role], role.String())
	}
}

func TestDeckDrawsFromTop(t *testing.T) {
	d := Deck{Duke, Captain, Contessa}

	peeked, err := d.Peek(2)
	require.NoError(t, err)
	assert.Equal(t, []Influence{Captain, Contessa}, peeked)
	assert.Equal(t, 3, d.Len())

	drawn, err := d.Draw(2)
	require.NoError(t, err)
	assert.Equal(t, []Influence{Captain, Contessa}, drawn)
	assert.Equal(t, Deck{Duke}, d)

	_, err = d.Draw(2)
	assert.True(t, errors.Is(err, errors.ErrDeckExhausted))
	assert.True(t, errors.IsCritical(err))
	assert.Equal(t, Deck{Duke}, d)
}

func TestDeckReturnAndShuffle(t *testing.T) {
	d := Deck{Duke}
	d.ReturnAndShuffle(noShuffle{}, Assassin, Ambassador)
	assert.Equal(t, Deck{Duke, Assassin, Ambassador}, d)
}

func TestDeckEncoding(t *testing.T) {
	d := Deck{Duke, Ambassador, Assassin, Contessa, Captain}
	assert.Equal(t, "12345", d.String())

	parsed, err := ParseDeck("12345")
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	empty, err := ParseDeck("")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	_, err = ParseDeck("106")
	assert.True(t, errors.Is(err, errors.ErrDataIntegrity))
}

func TestInfluenceText(t *testing.T) {
	assert.Equal(t, "AMBASSADOR", Ambassador.String())
	assert.Equal(t, "Ambassador", Ambassador.Title())
	assert.Equal(t, "an Assassin", Assassin.withArticle())
	assert.Equal(t, "a Captain", Captain.withArticle())

	for _, in := range []string{"duke", "DUKE", "1", " Duke "} {
		inf, err := ParseInfluence(in)
		require.NoError(t, err, in)
		assert.Equal(t, Duke, inf)
	}
	_, err := ParseInfluence("jester")
	assert.True(t, errors.Is(err, errors.ErrInvalidReveal))
	_, err = ParseInfluence("9")
	assert.Error(t, err)

	raw, err := json.Marshal([]Influence{Contessa, Unknown})
	require.NoError(t, err)
	assert.JSONEq(t, `["CONTESSA","UNKNOWN"]`, string(raw))

	var decoded []Influence
	require.NoError(t, json.Unmarshal([]byte(`["captain","2"]`), &decoded))
	assert.Equal(t, []Influence{Captain, Ambassador}, decoded)
}

func TestCatalog(t *testing.T) {
	assert.Len(t, Actions(), 7)
	for _, kind := range Actions() {
		spec, ok := Lookup(kind)
		require.True(t, ok, kind)
		assert.Equal(t, kind, spec.Kind)
		assert.NotEmpty(t, spec.SuccessMessage)
		assert.Equal(t, spec.Immediate(), spec.AttemptMessage == "", kind)
	}

	coup, _ := Lookup(ActionCoup)
	assert.True(t, coup.Immediate())
	assert.Equal(t, 7, coup.Cost)

	steal, _ := Lookup(ActionSteal)
	assert.True(t, steal.CanBlockWith(Ambassador))
	assert.True(t, steal.CanBlockWith(Captain))
	assert.False(t, steal.CanBlockWith(Duke))

	kind, ok := ParseAction(" Foreign_Aid ")
	assert.True(t, ok)
	assert.Equal(t, ActionForeignAid, kind)
	_, ok = ParseAction("embezzle")
	assert.False(t, ok)
}
