// Package main provides the entry point for the site-admin backend.
// It runs a Fiber web server that exposes the JSON API and WebSocket
// feed consumed by the admin single-page client: entity CRUD (friend
// links, announcements, apps, group chats, incidents, changelogs),
// visitor analytics, and encrypted runtime configuration management
// with change history and rollback. Data is persisted with gorm.
package main
