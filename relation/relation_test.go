package relation_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/relation"
	"github.com/mickamy/ormrel/scope"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// blogRegistry registers users, profiles, posts, tags and labels.
// tags has a unique field, labels does not.
func blogRegistry(t *testing.T, db orm.Querier) *relation.Registry {
	t.Helper()

	reg := relation.NewRegistry(db, relation.WithPluralTables(), relation.WithLogger(quietLogger()))
	require.NoError(t, reg.Register(orm.ModelConfig{Name: "user"}, relation.Declarations{
		"profile": relation.Shorthand(relation.OneToOne),
		"posts":   {Type: relation.OneToMany, Model: "post"},
	}))
	require.NoError(t, reg.Register(orm.ModelConfig{Name: "profile"}, nil))
	require.NoError(t, reg.Register(orm.ModelConfig{Name: "post"}, relation.Declarations{
		"user":   relation.Shorthand(relation.BelongsTo),
		"tags":   {Type: relation.ManyToMany, Model: "tag"},
		"labels": {Type: relation.ManyToMany, Model: "label"},
	}))
	require.NoError(t, reg.Register(orm.ModelConfig{Name: "tag", UniqueField: "sku"}, nil))
	require.NoError(t, reg.Register(orm.ModelConfig{Name: "label"}, nil))
	return reg
}

func newMock(t *testing.T) (*relation.Registry, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)

	return blogRegistry(t, orm.New(db, orm.MySQL)), mock
}

func entity(t *testing.T, reg *relation.Registry, name string) *relation.Entity {
	t.Helper()

	e, err := reg.Entity(name)
	require.NoError(t, err)
	return e
}

func TestHydrateWithoutRelationsIsIdentity(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	rows := []orm.Row{{"id": 1, "sku": "A"}}

	got, err := entity(t, reg, "tag").HydrateAll(t.Context(), rows)
	require.NoError(t, err)
	assert.Equal(t, []orm.Row{{"id": 1, "sku": "A"}}, got)

	got, err = entity(t, reg, "user").EnableRelations(false).HydrateAll(t.Context(), rows)
	require.NoError(t, err)
	assert.Equal(t, []orm.Row{{"id": 1, "sku": "A"}}, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHydrateAllBatchesOneToMany(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.ExpectQuery("SELECT * FROM `posts` WHERE `user_id` IN (?, ?, ?)").
		WithArgs(1, 2, 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).
			AddRow(10, 1, "a").
			AddRow(11, 2, "b").
			AddRow(12, 1, "c"))

	rows := []orm.Row{{"id": 1}, {"id": 2}, {"id": 1}, {"id": 3}}
	got, err := entity(t, reg, "user").SetRelation([]string{"posts"}, true).HydrateAll(t.Context(), rows)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	titles := func(row orm.Row) []any {
		var out []any
		for _, p := range row["posts"].([]orm.Row) {
			out = append(out, p["title"])
		}
		return out
	}
	assert.Equal(t, []any{"a", "c"}, titles(got[0]))
	assert.Equal(t, []any{"b"}, titles(got[1]))
	assert.Equal(t, []any{"a", "c"}, titles(got[2]))
	assert.Equal(t, []orm.Row{}, got[3]["posts"])
}

func TestHydrateBelongsToInvertsKeys(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.ExpectQuery("SELECT * FROM `users` WHERE `id` = ? LIMIT 1").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(3, "alice"))

	row := orm.Row{"id": 10, "user_id": 3}
	got, err := entity(t, reg, "post").SetRelation([]string{"user"}, true).Hydrate(t.Context(), row)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, orm.Row{"id": int64(3), "name": "alice"}, got["user"])
}

func TestHydrateOneToOneNoMatchIsEmptyRow(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.ExpectQuery("SELECT * FROM `profiles` WHERE `user_id` = ? LIMIT 1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}))

	got, err := entity(t, reg, "user").SetRelation([]string{"profile"}, true).Hydrate(t.Context(), orm.Row{"id": 1})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, orm.Row{}, got["profile"])
}

func TestHydrateFetchesRelationsConcurrently(t *testing.T) {
	t.Parallel()

	const delay = 200 * time.Millisecond

	reg, mock := newMock(t)
	mock.ExpectQuery("SELECT * FROM `profiles` WHERE `user_id` IN (?)").
		WithArgs(1).
		WillDelayFor(delay).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "bio"}).AddRow(5, 1, "hi"))
	mock.ExpectQuery("SELECT * FROM `posts` WHERE `user_id` IN (?)").
		WithArgs(1).
		WillDelayFor(delay).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(10, 1))

	start := time.Now()
	got, err := entity(t, reg, "user").HydrateAll(t.Context(), []orm.Row{{"id": 1}})
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Less(t, elapsed, 2*delay-20*time.Millisecond, "relation queries should overlap")
	assert.Equal(t, "hi", got[0]["profile"].(orm.Row)["bio"])
	assert.Len(t, got[0]["posts"], 1)
}

func TestHydrateAllWithoutKeysMatchesNothing(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.ExpectQuery("SELECT * FROM `posts` WHERE 1 = 0").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}))

	rows := []orm.Row{{"id": nil}, {"name": "anonymous"}}
	got, err := entity(t, reg, "user").SetRelation([]string{"posts"}, true).HydrateAll(t.Context(), rows)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	for _, row := range got {
		assert.Equal(t, []orm.Row{}, row["posts"])
	}
}

func TestHydrateFetchErrorAborts(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	boom := errors.New("boom")
	mock.ExpectQuery("SELECT * FROM `posts` WHERE `user_id` = ?").
		WithArgs(1).
		WillReturnError(boom)

	_, err := entity(t, reg, "user").SetRelation([]string{"posts"}, true).Hydrate(t.Context(), orm.Row{"id": 1})
	assert.ErrorIs(t, err, boom)
}

func TestHydrateSkipsPopulatedRelation(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	profile := orm.Row{"bio": "preloaded"}
	row := orm.Row{"id": 1, "profile": profile}

	got, err := entity(t, reg, "user").SetRelation([]string{"profile"}, true).Hydrate(t.Context(), row)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, profile, got["profile"])
}

func TestHydrateManyToMany(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.ExpectQuery("SELECT b.*, a.`post_id` FROM `posts_tag` AS a, `tags` AS b " +
		"WHERE a.`post_id` IN (?, ?) AND a.`tag_id` = b.`id`").
		WithArgs(7, 8).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sku", "post_id"}).
			AddRow(1, "A", 7).
			AddRow(2, "B", 7).
			AddRow(1, "A", 8))

	rows := []orm.Row{{"id": 7}, {"id": 8}}
	got, err := entity(t, reg, "post").SetRelation([]string{"tags"}, true).HydrateAll(t.Context(), rows)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Len(t, got[0]["tags"], 2)
	assert.Len(t, got[1]["tags"], 1)
}

func TestSetRelationComplement(t *testing.T) {
	t.Parallel()

	reg := relation.NewRegistry(orm.New(nil, orm.MySQL))
	require.NoError(t, reg.Register(orm.ModelConfig{Name: "thing"}, relation.Declarations{
		"a": relation.Shorthand(relation.OneToOne),
		"b": relation.Shorthand(relation.OneToMany),
		"c": relation.Shorthand(relation.ManyToMany),
	}))

	e := entity(t, reg, "thing")
	assert.Equal(t, []string{"a", "b", "c"}, e.ActiveRelations())
	assert.Equal(t, []string{"b", "c"}, e.SetRelation([]string{"a"}, false).ActiveRelations())
	assert.Equal(t, []string{"a", "b"}, e.SetRelation([]string{"a, b"}, true).ActiveRelations())
	assert.Equal(t, []string{"c"}, e.SetRelation([]string{"a,b"}, false).ActiveRelations())
	assert.Empty(t, e.EnableRelations(false).ActiveRelations())
	assert.Equal(t, []string{"b"}, e.SetActivation(relation.OnlyRelations("b", "zzz")).ActiveRelations())
}

func TestDeclareMergesDeclarations(t *testing.T) {
	t.Parallel()

	reg := relation.NewRegistry(orm.New(nil, orm.MySQL))
	require.NoError(t, reg.Register(orm.ModelConfig{Name: "thing"}, relation.Declarations{
		"a": relation.Shorthand(relation.OneToOne),
	}))

	e := entity(t, reg, "thing").
		Declare("b", relation.Shorthand(relation.OneToMany)).
		DeclareAll(relation.Declarations{"a": relation.Shorthand(relation.BelongsTo)})

	decls := e.Relations()
	assert.Equal(t, relation.BelongsTo, decls["a"].Type)
	assert.Equal(t, relation.OneToMany, decls["b"].Type)

	// the registration is untouched
	assert.Len(t, entity(t, reg, "thing").Relations(), 1)
}

func TestUnknownModel(t *testing.T) {
	t.Parallel()

	reg, _ := newMock(t)
	_, err := reg.Entity("nope")
	assert.ErrorIs(t, err, relation.ErrUnknownModel)

	require.NoError(t, reg.Register(orm.ModelConfig{Name: "orphan"}, relation.Declarations{
		"ghost": relation.Shorthand(relation.OneToMany),
	}))
	_, err = entity(t, reg, "orphan").Hydrate(t.Context(), orm.Row{"id": 1})
	assert.ErrorIs(t, err, relation.ErrUnknownModel)
}

func TestRegisterRejectsUnknownType(t *testing.T) {
	t.Parallel()

	reg := relation.NewRegistry(orm.New(nil, orm.MySQL))
	err := reg.Register(orm.ModelConfig{Name: "thing"}, relation.Declarations{"x": {Type: relation.Type(9)}})
	assert.Error(t, err)
	assert.Error(t, reg.Register(orm.ModelConfig{}, nil))
}

// --- writes ---

func TestPostOneToManyUpdateToleratesFailedInsert(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.ExpectExec("UPDATE `posts` SET `title` = ? WHERE `id` = ?").
		WithArgs("x", 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `posts` (`title`, `user_id`) VALUES (?, ?)").
		WithArgs("new", 1).
		WillReturnError(errors.New("insert failed"))

	err := entity(t, reg, "user").SetRelation([]string{"posts"}, true).
		PostRelation(t.Context(), relation.PostUpdate, orm.Row{
			"id":    1,
			"posts": []any{orm.Row{"id": 10, "title": "x"}, orm.Row{"title": "new"}},
		})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostOneToManyUpdateFailsOnUpdateError(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	boom := errors.New("boom")
	mock.ExpectExec("UPDATE `posts` SET `title` = ? WHERE `id` = ?").
		WithArgs("x", 10).
		WillReturnError(boom)

	err := entity(t, reg, "user").SetRelation([]string{"posts"}, true).
		PostRelation(t.Context(), relation.PostUpdate, orm.Row{
			"id":    1,
			"posts": []orm.Row{{"id": 10, "title": "x"}},
		})
	assert.ErrorIs(t, err, boom)
}

func TestPostOneToManyAdd(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.ExpectExec("INSERT INTO `posts` (`title`, `user_id`) VALUES (?, ?), (?, ?)").
		WithArgs("a", 1, "b", 1).
		WillReturnResult(sqlmock.NewResult(0, 2))

	payload := []orm.Row{{"title": "a"}, {"title": "b"}}
	err := entity(t, reg, "user").SetRelation([]string{"posts"}, true).
		PostRelation(t.Context(), relation.PostAdd, orm.Row{"id": 1, "posts": payload})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.NotContains(t, payload[0], "user_id", "payload rows are copied before stamping")
}

func TestPostDeleteUsesFilter(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.ExpectExec("DELETE FROM `posts` WHERE `user_id` = ?").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM `profiles` WHERE `user_id` = ?").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := entity(t, reg, "user").PostRelation(t.Context(), relation.PostDelete, orm.Row{"id": 1})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostOneToOneUpdate(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.ExpectExec("UPDATE `profiles` SET `bio` = ? WHERE `user_id` = ?").
		WithArgs("new bio", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := entity(t, reg, "user").SetRelation([]string{"profile"}, true).
		PostRelation(t.Context(), relation.PostUpdate, orm.Row{"id": 1, "profile": orm.Row{"bio": "new bio"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostSkipsEmptyPayloadAndBelongsTo(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	err := entity(t, reg, "post").PostRelation(t.Context(), relation.PostAdd, orm.Row{
		"id":     1,
		"user":   orm.Row{"id": 3},
		"tags":   []any{},
		"labels": "",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostMissingKey(t *testing.T) {
	t.Parallel()

	reg, _ := newMock(t)
	err := entity(t, reg, "user").PostRelation(t.Context(), relation.PostAdd, orm.Row{
		"posts": []orm.Row{{"title": "a"}},
	})
	assert.ErrorIs(t, err, relation.ErrMissingKey)
}

func TestPostManyToManyDirectIDs(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.MatchExpectationsInOrder(true)
	mock.ExpectExec("DELETE FROM `posts_tag` WHERE `post_id` = ?").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `posts_tag` (`post_id`, `tag_id`) VALUES (?, ?), (?, ?)").
		WithArgs(5, "1", 5, "2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := entity(t, reg, "post").SetRelation([]string{"tags"}, true).
		PostRelation(t.Context(), relation.PostUpdate, orm.Row{"id": 5, "tags": "1, 2"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostManyToManyWithoutUniqueField(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.ExpectExec("INSERT INTO `posts` (`title`) VALUES (?)").
		WithArgs("hello").
		WillReturnResult(sqlmock.NewResult(7, 1))

	data := orm.Row{"title": "hello", "labels": []string{"red"}}
	_, err := entity(t, reg, "post").Add(t.Context(), data)
	require.ErrorIs(t, err, relation.ErrNoUniqueField)
	assert.Equal(t, int64(7), data["id"])

	// neither the join table nor labels were touched
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostManyToManyWithoutUniqueFieldKeepsJoinRowsOnUpdate(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	err := entity(t, reg, "post").SetRelation([]string{"labels"}, true).
		PostRelation(t.Context(), relation.PostUpdate, orm.Row{"id": 5, "labels": []string{"red"}})
	require.ErrorIs(t, err, relation.ErrNoUniqueField)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityDelete(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.MatchExpectationsInOrder(true)
	mock.ExpectExec("DELETE FROM `posts` WHERE `id` = ?").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `posts_tag` WHERE `post_id` = ?").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := entity(t, reg, "post").SetRelation([]string{"tags"}, true).Delete(t.Context(), orm.Row{"id": 5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostNarrowsWritesByRelationWhere(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)

	reg := relation.NewRegistry(orm.New(db, orm.MySQL), relation.WithPluralTables(), relation.WithLogger(quietLogger()))
	require.NoError(t, reg.Register(orm.ModelConfig{Name: "user"}, relation.Declarations{
		"drafts": {
			Type:  relation.OneToMany,
			Model: "post",
			Where: relation.Static(scope.Eq("status", 0)),
		},
		"avatar": {
			Type:   relation.OneToOne,
			Model:  "profile",
			Scopes: relation.Static(scope.Combine(scope.Where("kind = ?", "avatar"))),
		},
	}))
	require.NoError(t, reg.Register(orm.ModelConfig{Name: "post"}, nil))
	require.NoError(t, reg.Register(orm.ModelConfig{Name: "profile"}, nil))

	mock.ExpectExec("DELETE FROM `posts` WHERE `status` = ? AND `user_id` = ?").
		WithArgs(0, 1).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM `profiles` WHERE (kind = ?) AND `user_id` = ?").
		WithArgs("avatar", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = entity(t, reg, "user").PostRelation(t.Context(), relation.PostDelete, orm.Row{"id": 1})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec("UPDATE `profiles` SET `url` = ? WHERE (kind = ?) AND `user_id` = ?").
		WithArgs("a.png", "avatar", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = entity(t, reg, "user").SetRelation([]string{"avatar"}, true).
		PostRelation(t.Context(), relation.PostUpdate, orm.Row{"id": 1, "avatar": orm.Row{"url": "a.png"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostManyToManyRowItemsWriteOnlyJoinColumns(t *testing.T) {
	t.Parallel()

	reg, mock := newMock(t)
	mock.ExpectExec("INSERT INTO `posts_tag` (`post_id`, `tag_id`) VALUES (?, ?), (?, ?)").
		WithArgs(5, 1, 5, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := entity(t, reg, "post").SetRelation([]string{"tags"}, true).
		PostRelation(t.Context(), relation.PostAdd, orm.Row{"id": 5, "tags": []orm.Row{
			{"tag_id": 1, "sku": "A"},
			{"tag_id": 2, "sku": "B", "name": "bee"},
		}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithQuerierSharesRegistrations(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `posts` WHERE `user_id` = ?").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ormDB := orm.New(db, orm.MySQL)
	reg := blogRegistry(t, ormDB)
	err = ormDB.Transaction(t.Context(), func(tx *orm.Tx) error {
		users, err := reg.WithQuerier(tx).Entity("user")
		if err != nil {
			return err
		}
		return users.SetRelation([]string{"posts"}, true).
			PostRelation(t.Context(), relation.PostDelete, orm.Row{"id": 1})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"label", "post", "profile", "tag", "user"}, reg.Models())
}
