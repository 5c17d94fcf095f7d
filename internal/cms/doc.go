// Package cms reads and rewrites the database credentials stored in CMS configuration files.
//
// Each supported CMS is an Adapter recognised by a marker entry in its install
// root. The Registry holds the adapters in a fixed order, WordPress before
// Magento, and Discoverer walks a document root to list candidate credential
// files and install roots.
package cms
