// Package ui formats pipeline progress for the operator's console.
//
// Lifecycle events are rendered as short sentences on the console logger
// while the structured diagnostic logger keeps the detailed fields.
package ui
