// Package repo хранит каталог воркеров и архив завершённых задач в PostgreSQL.
//
// Оркестратор работает и без БД: каталог тогда задаётся файлом или
// через API, а история ограничена памятью Dispatcher'а.
package repo
