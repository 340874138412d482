package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeandaverde/litedb/tsql/ast"
	"github.com/joeandaverde/litedb/tsql/lexer"
	"github.com/joeandaverde/litedb/tsql/scan"
)

func TestParseStatement_Accepts(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"select star", "SELECT * FROM users"},
		{"select columns", "SELECT id, name FROM users"},
		{"select qualified columns", "SELECT u.id, u.name FROM users u"},
		{"select with alias", "SELECT name AS n FROM users"},
		{"select where", "SELECT * FROM users WHERE age > 30"},
		{"select where compound", "SELECT * FROM users WHERE age > 30 AND name = 'Alice'"},
		{"select aggregate", "SELECT COUNT(*) FROM users"},
		{"select aggregates", "SELECT COUNT(id), SUM(age), AVG(age), MIN(age), MAX(age) FROM users"},
		{"select group by", "SELECT user_id, SUM(amount) FROM orders GROUP BY user_id"},
		{"select group by having", "SELECT user_id, SUM(amount) AS total FROM orders GROUP BY user_id HAVING SUM(amount) > 100"},
		{"select order by", "SELECT name FROM users ORDER BY age DESC, name"},
		{"select limit", "SELECT name FROM users ORDER BY age LIMIT 3"},
		{"select join", "SELECT u.name, o.product FROM users u JOIN orders o ON u.id = o.user_id"},
		{"select inner join", "SELECT * FROM users u INNER JOIN orders o ON u.id = o.user_id"},
		{"select left join", "SELECT * FROM users u LEFT JOIN orders o ON u.id = o.user_id"},
		{"select left outer join", "SELECT * FROM users u LEFT OUTER JOIN orders o ON u.id = o.user_id"},
		{"select in list", "SELECT * FROM users WHERE id IN (1, 2, 3)"},
		{"select in subquery", "SELECT name FROM users WHERE id IN (SELECT user_id FROM orders WHERE amount > 100)"},
		{"select not in", "SELECT * FROM users WHERE id NOT IN (1, 2)"},
		{"select union", "SELECT name FROM users UNION SELECT product FROM orders"},
		{"select union all", "SELECT name FROM users UNION ALL SELECT product FROM orders"},
		{"select arithmetic", "SELECT amount * 2 + 1 FROM orders"},
		{"select is null", "SELECT * FROM users WHERE name IS NULL"},
		{"select is not null", "SELECT * FROM users WHERE name IS NOT NULL"},
		{"select not predicate", "SELECT * FROM users WHERE NOT age > 30"},
		{"select comma join", "SELECT u.name, o.product FROM users u, orders o WHERE u.id = o.user_id"},
		{"select without from", "SELECT 1 + 1 AS two"},
		{"create table", "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)"},
		{"create table if not exists", "CREATE TABLE IF NOT EXISTS users (id INTEGER)"},
		{"create table not null", "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT NOT NULL)"},
		{"create index", "CREATE INDEX idx_users_age ON users (age)"},
		{"create composite index", "CREATE INDEX idx ON orders (user_id, amount)"},
		{"insert", "INSERT INTO users (name, age) VALUES ('Alice', 28)"},
		{"insert multi row", "INSERT INTO users (name, age) VALUES ('Alice', 28), ('Bob', 35)"},
		{"insert negative", "INSERT INTO t (x) VALUES (-5)"},
		{"insert float", "INSERT INTO orders (amount) VALUES (25.5)"},
		{"insert null", "INSERT INTO users (name, age) VALUES ('Eve', NULL)"},
		{"insert escaped quote", "INSERT INTO users (name) VALUES ('O''Brien')"},
		{"update", "UPDATE users SET age = 29 WHERE name = 'Alice'"},
		{"update multiple", "UPDATE users SET age = age + 1, name = 'x'"},
		{"delete", "DELETE FROM users WHERE age < 25"},
		{"delete all", "DELETE FROM users"},
		{"drop table", "DROP TABLE users"},
		{"drop table if exists", "DROP TABLE IF EXISTS users"},
		{"drop index", "DROP INDEX idx_users_age"},
		{"drop index if exists", "DROP INDEX IF EXISTS idx_users_age"},
		{"case insensitive keywords", "select name from users where age > 30"},
		{"leading whitespace", "  \n\tSELECT * FROM users"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			stmt, err := ParseStatement(tc.text)
			assert.NoError(err)
			assert.NotNil(stmt)
		})
	}
}

func TestParseStatement_Rejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"garbage", "FLARP GLORP"},
		{"select missing columns", "SELECT FROM users"},
		{"select trailing tokens", "SELECT * FROM users users users users"},
		{"insert missing values", "INSERT INTO users (name)"},
		{"unterminated string", "SELECT * FROM users WHERE name = 'Alice"},
		{"unbalanced parens", "INSERT INTO users (name VALUES ('x')"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			stmt, err := ParseStatement(tc.text)
			assert.Error(err)
			assert.Nil(stmt)

			var syntaxErr *SyntaxError
			assert.ErrorAs(err, &syntaxErr)
		})
	}
}

func Test_parseSelect_Full(t *testing.T) {
	assert := require.New(t)

	scanner := scan.NewScanner(
		"SELECT u.name AS n, COUNT(*) FROM users u " +
			"LEFT JOIN orders o ON u.id = o.user_id " +
			"WHERE u.age > 30 GROUP BY u.name HAVING COUNT(*) > 1 " +
			"ORDER BY n DESC LIMIT 5")

	stmt, err := parseSelect(scanner)
	assert.NoError(err)
	assert.NotNil(stmt)

	assert.Equal(&ast.TableAlias{Name: "users", Alias: "u"}, stmt.From)

	assert.Len(stmt.Columns, 2)
	assert.Equal("n", stmt.Columns[0].Alias)
	assert.Equal(&ast.Ident{Value: "u.name"}, stmt.Columns[0].Expr)
	count, ok := stmt.Columns[1].Expr.(*ast.FunctionCall)
	assert.True(ok)
	assert.Equal("COUNT", count.Name)
	assert.True(count.Star)

	assert.Len(stmt.Joins, 1)
	assert.True(stmt.Joins[0].Left)
	assert.Equal(ast.TableAlias{Name: "orders", Alias: "o"}, stmt.Joins[0].Table)
	on, ok := stmt.Joins[0].On.(*ast.BinaryOperation)
	assert.True(ok)
	assert.Equal("=", on.Operator)

	filter, ok := stmt.Filter.(*ast.BinaryOperation)
	assert.True(ok)
	assert.Equal(">", filter.Operator)

	assert.Len(stmt.GroupBy, 1)
	assert.NotNil(stmt.Having)

	assert.Len(stmt.OrderBy, 1)
	assert.True(stmt.OrderBy[0].Desc)
	assert.Equal(&ast.Ident{Value: "n"}, stmt.OrderBy[0].Expr)

	assert.NotNil(stmt.Limit)
	assert.Equal(5, *stmt.Limit)
}

func Test_parseSelect_Union(t *testing.T) {
	assert := require.New(t)

	scanner := scan.NewScanner("SELECT name FROM users UNION ALL SELECT product FROM orders")
	stmt, err := parseSelect(scanner)
	assert.NoError(err)
	assert.NotNil(stmt)

	assert.True(stmt.UnionAll)
	assert.NotNil(stmt.Union)
	assert.Equal("orders", stmt.Union.From.Name)
}

func Test_parseSelect_InSubquery(t *testing.T) {
	assert := require.New(t)

	scanner := scan.NewScanner("SELECT name FROM users WHERE id IN (SELECT user_id FROM orders)")
	stmt, err := parseSelect(scanner)
	assert.NoError(err)
	assert.NotNil(stmt)

	in, ok := stmt.Filter.(*ast.InExpression)
	assert.True(ok)
	assert.False(in.Not)
	assert.Equal(&ast.Ident{Value: "id"}, in.Needle)
	assert.NotNil(in.Select)
	assert.Equal("orders", in.Select.From.Name)
}

func Test_parseCreateTable(t *testing.T) {
	assert := require.New(t)

	scanner := scan.NewScanner("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER)")
	stmt, err := parseCreateTable(scanner)
	assert.NoError(err)
	assert.NotNil(stmt)

	assert.Equal("users", stmt.TableName)
	assert.False(stmt.IfNotExists)
	assert.Equal([]ast.ColumnDefinition{
		{Name: "id", Type: "INTEGER", PrimaryKey: true},
		{Name: "name", Type: "TEXT", NotNull: true},
		{Name: "age", Type: "INTEGER"},
	}, stmt.Columns)
}

func Test_parseInsert_MultiRow(t *testing.T) {
	assert := require.New(t)

	scanner := scan.NewScanner("INSERT INTO users (name, age) VALUES ('Alice', 28), ('Bob', 35)")
	stmt, err := parseInsert(scanner)
	assert.NoError(err)
	assert.NotNil(stmt)

	assert.Equal("users", stmt.Table)
	assert.Equal([]string{"name", "age"}, stmt.Columns)
	assert.Len(stmt.Rows, 2)

	first, ok := stmt.Rows[0][0].(*ast.BasicLiteral)
	assert.True(ok)
	assert.Equal("Alice", first.Value)
	assert.Equal(lexer.TokenString, first.Kind)

	age, ok := stmt.Rows[1][1].(*ast.BasicLiteral)
	assert.True(ok)
	assert.Equal("35", age.Value)
	assert.Equal(lexer.TokenNumber, age.Kind)
}

func Test_parseUpdate(t *testing.T) {
	assert := require.New(t)

	scanner := scan.NewScanner("UPDATE users SET age = age + 1 WHERE name = 'Alice'")
	stmt, err := parseUpdate(scanner)
	assert.NoError(err)
	assert.NotNil(stmt)

	assert.Equal("users", stmt.Table)
	assert.Len(stmt.Assignments, 1)
	assert.Equal("age", stmt.Assignments[0].Column)

	value, ok := stmt.Assignments[0].Value.(*ast.BinaryOperation)
	assert.True(ok)
	assert.Equal("+", value.Operator)

	assert.NotNil(stmt.Filter)
}

func Test_parseDelete(t *testing.T) {
	assert := require.New(t)

	scanner := scan.NewScanner("DELETE FROM users WHERE age < 25")
	stmt, err := parseDelete(scanner)
	assert.NoError(err)
	assert.NotNil(stmt)

	assert.Equal("users", stmt.Table)
	assert.NotNil(stmt.Filter)
}

func TestOperatorPrecedence(t *testing.T) {
	assert := require.New(t)

	stmt, err := ParseStatement("SELECT * FROM t WHERE a = 1 + 2 * 3 AND b = 4 OR c = 5")
	assert.NoError(err)

	sel := stmt.(*ast.SelectStatement)

	// OR binds loosest.
	or, ok := sel.Filter.(*ast.BinaryOperation)
	assert.True(ok)
	assert.Equal("OR", or.Operator)

	and, ok := or.Left.(*ast.BinaryOperation)
	assert.True(ok)
	assert.Equal("AND", and.Operator)

	// 1 + 2 * 3 parses as 1 + (2 * 3).
	eq := and.Left.(*ast.BinaryOperation)
	assert.Equal("=", eq.Operator)
	sum := eq.Right.(*ast.BinaryOperation)
	assert.Equal("+", sum.Operator)
	product := sum.Right.(*ast.BinaryOperation)
	assert.Equal("*", product.Operator)
}
