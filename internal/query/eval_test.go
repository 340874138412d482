package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeandaverde/litedb/internal/storage"
)

// evalDB builds a database with a single-row table so scalar
// expressions can be evaluated through a SELECT.
func evalDB(t *testing.T) *testDB {
	t.Helper()
	db := newTestDB(t)
	db.exec(t, "CREATE TABLE one (x INTEGER)")
	db.exec(t, "INSERT INTO one (x) VALUES (10)")
	return db
}

func Test_Eval_Scalars(t *testing.T) {
	db := evalDB(t)

	cases := []struct {
		expr string
		want storage.Field
	}{
		{"1 + 2", intField(3)},
		{"10 - 4", intField(6)},
		{"6 * 7", intField(42)},
		{"7 / 2", intField(3)},
		{"7.0 / 2", realField(3.5)},
		{"1 / 0", nullField()},
		{"5 % 3", intField(2)},
		{"-3 * 2", intField(-6)},
		{"1.5 + 1.5", realField(3.0)},
		{"2 + NULL", nullField()},

		{"2 = 2", intField(1)},
		{"2 = 3", intField(0)},
		{"2 <> 3", intField(1)},
		{"2 != 2", intField(0)},
		{"3 > 2", intField(1)},
		{"3 >= 3", intField(1)},
		{"2 < 1", intField(0)},
		{"'abc' = 'abc'", intField(1)},
		{"'abc' < 'abd'", intField(1)},

		// Numerics sort before text, and no implicit conversion makes
		// 1 equal to '1'.
		{"1 = '1'", intField(0)},
		{"1 < 'a'", intField(1)},

		{"NULL = 1", nullField()},
		{"NULL = NULL", nullField()},
		{"NULL IS NULL", intField(1)},
		{"1 IS NULL", intField(0)},
		{"1 IS NOT NULL", intField(1)},
		{"NULL IS 1", intField(0)},

		{"true AND false", intField(0)},
		{"true AND true", intField(1)},
		{"false OR true", intField(1)},
		{"NULL AND false", intField(0)},
		{"NULL AND true", nullField()},
		{"NULL OR true", intField(1)},
		{"NULL OR false", nullField()},

		{"NOT false", intField(1)},
		{"NOT 1 = 2", intField(1)},
		{"NOT NULL", nullField()},
		{"NOT x > 5 OR false", intField(0)},

		{"2 IN (1, 2, 3)", intField(1)},
		{"4 IN (1, 2, 3)", intField(0)},
		{"4 IN (1, NULL)", nullField()},
		{"NULL IN (1, 2)", nullField()},
		{"4 NOT IN (1, 2)", intField(1)},
		{"2 NOT IN (1, NULL, 2)", intField(0)},
		{"4 NOT IN (1, NULL)", nullField()},

		{"x + 1", intField(11)},
		{"x > 5 AND x < 20", intField(1)},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			assert := require.New(t)
			_, rows := db.query(t, "SELECT "+tc.expr+" AS v FROM one")
			assert.Len(rows, 1)
			assert.Equal(tc.want, rows[0][0])
		})
	}
}

func Test_Eval_NullComparisonFiltersRow(t *testing.T) {
	assert := require.New(t)
	db := newTestDB(t)

	db.exec(t, "CREATE TABLE t (a INTEGER)")
	db.exec(t, "INSERT INTO t (a) VALUES (1), (NULL), (3)")

	// An unknown predicate drops the row, so neither = nor != sees null.
	_, eq := db.query(t, "SELECT a FROM t WHERE a = 1")
	assert.Len(eq, 1)

	_, ne := db.query(t, "SELECT a FROM t WHERE a != 1")
	assert.Len(ne, 1)
	assert.Equal(intField(3), ne[0][0])

	_, isNull := db.query(t, "SELECT a FROM t WHERE a IS NULL")
	assert.Len(isNull, 1)
	assert.Equal(nullField(), isNull[0][0])
}

func Test_ApplyAffinity(t *testing.T) {
	assert := require.New(t)

	// Integer columns accept integral reals and numeric text.
	assert.Equal(intField(3), applyAffinity(realField(3.0), storage.Integer))
	assert.Equal(realField(3.5), applyAffinity(realField(3.5), storage.Integer))
	assert.Equal(intField(42), applyAffinity(textField("42"), storage.Integer))
	assert.Equal(textField("abc"), applyAffinity(textField("abc"), storage.Integer))

	// Real columns widen integers.
	assert.Equal(realField(5.0), applyAffinity(intField(5), storage.Real))
	assert.Equal(realField(2.5), applyAffinity(textField("2.5"), storage.Real))

	// Text columns render numbers.
	assert.Equal(textField("7"), applyAffinity(intField(7), storage.Text))
	assert.Equal(textField("2.5"), applyAffinity(realField(2.5), storage.Text))

	// Nulls pass through untouched.
	assert.Equal(nullField(), applyAffinity(nullField(), storage.Integer))
}
