// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package typeinfo contains the reflection code of sqlstore. It extracts the
"db" tagged fields of struct types and reads and writes them by tag, so that
structs can be used wherever a property box is expected.
*/
package typeinfo
