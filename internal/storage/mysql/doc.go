// Package mysql persists operator accounts and compliance entities in MySQL.
// Schema migrations are embedded from deploy/migrations and applied in
// version order, one transaction per file.
package mysql
