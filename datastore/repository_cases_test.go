package datastore_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/datastore"
)

// repositoryCases run against every supported database.
var repositoryCases = []struct {
	name string
	run  func(t *testing.T, store *datastore.Store)
}{
	{"languages seeded once and ordered", languagesSeededOnce},
	{"first sight is exactly once", userFirstSightOnce},
	{"user preferences upsert", userPreferencesUpsert},
	{"message dedupe by content", messageDedupe},
	{"unknown lookup", unknownLookup},
	{"translation stored once", translationStoredOnce},
	{"concurrent translation saves", concurrentTranslationSaves},
}

func runRepositoryCases(t *testing.T, store *datastore.Store) {
	for _, tc := range repositoryCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.run(t, store)
		})
	}
}

func uniq(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

func languagesSeededOnce(t *testing.T, store *datastore.Store) {
	ctx := t.Context()
	catalog := []data.Language{
		{Code: "PT-BR", NativeName: "Português (Brasil)", EnglishName: "Portuguese (Brazil)"},
		{Code: "DE", NativeName: "Deutsch", EnglishName: "German"},
		{Code: "ES", NativeName: "Español", EnglishName: "Spanish"},
	}
	require.NoError(t, store.Languages.UpsertAll(ctx, catalog))

	renamed := []data.Language{{Code: "DE", NativeName: "Changed", EnglishName: "Changed"}}
	require.NoError(t, store.Languages.UpsertAll(ctx, renamed))

	languages, err := store.Languages.List(ctx)
	require.NoError(t, err)

	var codes []string
	for _, l := range languages {
		codes = append(codes, l.Code)
		if l.Code == "DE" {
			assert.Equal(t, "Deutsch", l.NativeName)
		}
	}
	assert.Equal(t, []string{"DE", "ES", "PT-BR"}, codes)
}

func userFirstSightOnce(t *testing.T, store *datastore.Store) {
	ctx := t.Context()
	id := uniq("user")

	const callers = 8
	var created sync.Map
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Users.CreateIfAbsent(ctx, &data.User{ID: id, LastKnownName: "Steve", DefaultLanguage: "EN-US"})
			assert.NoError(t, err)
			created.Store(i, ok)
		}()
	}
	wg.Wait()

	firsts := 0
	created.Range(func(_, v any) bool {
		if v.(bool) {
			firsts++
		}
		return true
	})
	assert.Equal(t, 1, firsts)

	user, err := store.Users.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "EN-US", user.DefaultLanguage)
}

func userPreferencesUpsert(t *testing.T, store *datastore.Store) {
	ctx := t.Context()
	id := uniq("user")

	_, err := store.Users.Get(ctx, id)
	require.True(t, data.ErrorIsNoRows(err))

	require.NoError(t, store.Users.SetDefaultLanguage(ctx, id, "DE"))
	require.NoError(t, store.Users.SetAutoMode(ctx, id, data.AutoForce))
	require.NoError(t, store.Users.SetDefaultLanguage(ctx, id, "FR"))

	user, err := store.Users.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "FR", user.DefaultLanguage)
	assert.Equal(t, data.AutoForce, user.AutoMode)
}

func messageDedupe(t *testing.T, store *datastore.Store) {
	ctx := t.Context()
	plain := uniq("hello world")
	rendered := `{"text":"<Steve> ` + plain + `"}`

	first, err := store.Messages.Persist(ctx, uuid.NewString(), rendered, plain)
	require.NoError(t, err)

	secondKey := uuid.NewString()
	second, err := store.Messages.Persist(ctx, secondKey, rendered, plain)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// the same text decorated differently is still one message
	otherKey := uuid.NewString()
	third, err := store.Messages.Persist(ctx, otherKey, `{"text":"[VIP] Steve: `+plain+`"}`, plain)
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)

	resolved, err := store.Messages.ResolveLookup(ctx, secondKey)
	require.NoError(t, err)
	assert.Equal(t, first.ID, resolved.ID)
	assert.Equal(t, plain, resolved.Text)
	assert.Nil(t, resolved.SourceLanguage)

	variant, err := store.Messages.ResolveVariant(ctx, otherKey)
	require.NoError(t, err)
	assert.Contains(t, variant.RenderedForm, "[VIP]")
}

func unknownLookup(t *testing.T, store *datastore.Store) {
	_, err := store.Messages.ResolveLookup(t.Context(), uuid.NewString())
	assert.True(t, data.ErrorIsNoRows(err))

	_, err = store.Messages.Persist(t.Context(), "", "{}", "x")
	assert.ErrorIs(t, err, datastore.ErrEmptyLookupKey)
}

func translationStoredOnce(t *testing.T, store *datastore.Store) {
	ctx := t.Context()
	msg, err := store.Messages.Persist(ctx, uuid.NewString(), `"hola"`, uniq("hola"))
	require.NoError(t, err)

	saved, err := store.Translations.Save(ctx, msg.ID, "EN-US", "hello", "ES")
	require.NoError(t, err)
	assert.Equal(t, "hello", saved.Text)

	again, err := store.Translations.Save(ctx, msg.ID, "EN-US", "hi there", "PT")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Text)
	assert.Equal(t, saved.ID, again.ID)

	reloaded, err := store.Messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.SourceLanguage)
	assert.Equal(t, "ES", *reloaded.SourceLanguage)

	got, err := store.Translations.Get(ctx, msg.ID, "EN-US")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)

	_, err = store.Translations.Get(ctx, msg.ID, "DE")
	assert.True(t, data.ErrorIsNoRows(err))
}

func concurrentTranslationSaves(t *testing.T, store *datastore.Store) {
	ctx := t.Context()
	msg, err := store.Messages.Persist(ctx, uuid.NewString(), `"bonjour"`, uniq("bonjour"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 6)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			saved, saveErr := store.Translations.Save(ctx, msg.ID, "DE", fmt.Sprintf("hallo %d", i), "FR")
			if assert.NoError(t, saveErr) {
				results[i] = saved.Text
			}
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}
