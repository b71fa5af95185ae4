// Package sqlite предоставляет инфраструктуру SQLite для журнала доставок.
//
// Основные возможности:
//   - открытие БД с PRAGMA, применяемыми к каждому соединению пула
//   - транзакции с повтором при SQLITE_BUSY (через pkg/retry)
//   - миграции golang-migrate из встроенной файловой системы (embed.FS)
//   - тестовые хелперы
//
// # Быстрый старт
//
//	db, err := sqlite.Open(ctx, "data/journal.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	if err := sqlite.ApplyMigrations("data/journal.db", migrations.SQLite, migrations.SQLiteDir); err != nil {
//		return err
//	}
//
// # Транзакции
//
//	runner := sqlite.NewTxRunner(db)
//	err = runner.WithinTx(ctx, func(ctx context.Context) error {
//		_, err := runner.Querier(ctx).ExecContext(ctx, "DELETE FROM delivery_attempts WHERE delivery_id = ?", id)
//		return err
//	})
//
// Вложенные транзакции не поддерживаются: WithinTx внутри WithinTx
// возвращает ErrNestedTx.
package sqlite
