// Package app composes the LMS server from its parts.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application wiring and Prepare/Shutdown lifecycle
//	├── domain/             # Domain models (course, user, enrollment)
//	├── storage/            # Store interfaces and implementations
//	│   ├── memory/         # In-memory store for tests and local runs
//	│   ├── offline/        # Empty store used in build/offline mode
//	│   └── postgres/       # PostgreSQL store with embedded migrations
//	├── services/           # Course catalog and enrollment services
//	├── httpapi/            # JSON API handlers and routing
//	└── system/             # Background service lifecycle
//
// # Dependency Direction
//
//	cmd/server/
//	      │
//	      ▼
//	internal/server/ (process supervisor)
//	      │
//	      ▼
//	internal/app/ (composition)
//	      │
//	      ├──► internal/app/services/
//	      ├──► internal/app/httpapi/ ──► internal/middleware/
//	      └──► internal/database/ (connection supervisor) ──► internal/app/storage/
package app
