/*
Package types provides the core interfaces and data structures shared by bucketfs components.

# Architecture Overview

	┌─────────────────────────────────────────────┐
	│           Filesystem facade                 │
	│         (internal/filesystem)               │
	└─────────────────────────────────────────────┘
	          │                     │
	┌─────────┴─────────┐ ┌─────────┴──────────┐
	│  Namespace Mapper │ │  Buffered streams  │
	│ (internal/namespace) │ (internal/stream) │
	└───────────────────┘ └────────────────────┘
	          │                     │
	┌─────────┴─────────────────────┴──────────┐
	│          ObjectBackend capability        │
	│  (internal/storage/s3, storage/memory)   │
	└──────────────────────────────────────────┘

# Core Interfaces

ObjectBackend:
The minimal capability the wrapped storage SDK must supply: head, range fetch,
put, delimiter listing with continuation tokens, single and batch delete, and the
four multipart upload calls. The mapper and streams are written once against it
and never see the concrete SDK.

Copier:
Optional server-side copy. The filesystem facade uses it when available and
falls back to streaming the object through a reader and writer otherwise.

# Data Structures

ObjectInfo carries head metadata. ListPage is one page of a delimiter listing.
DirEntry is the synthesized filesystem entry returned by listings and Info.
*/
package types
