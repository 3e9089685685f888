// Package users provides account management, authentication and the
// users grid for usergrid.
//
// # Core Features
//
//   - User lifecycle management (create, read, update, delete, update-me)
//   - Password login issuing HS256 bearer tokens whose subject is the user id
//   - Password recovery by email with single-use reset tokens
//   - Password policy enforced before hashing with bcrypt
//   - Seeding of the first superuser
//   - A server-side datatable over non-admin accounts
//
// # Architecture
//
//	┌─────────────────┐
//	│    Manager      │  ← Account flows, logging, metrics
//	├─────────────────┤
//	│ AuthService     │  ← Tokens and passwords
//	├─────────────────┤
//	│   Repository    │  ← database.Repository[User]
//	├─────────────────┤
//	│   GORM          │  ← SQLite or MySQL
//	└─────────────────┘
//
// # Usage
//
//	manager, err := users.NewManager(db, users.FromAppConfig(cfg),
//		users.WithLogger(log),
//		users.WithMailer(mailer),
//		users.WithTokenStore(store),
//	)
//
//	token, err := manager.Authenticate(ctx, users.LoginCredentials{
//		Username: "alice",
//		Password: "correct horse",
//	})
//
//	user, err := manager.CurrentUser(ctx, token.AccessToken)
//
// # Errors
//
// Every operation returns *errors.AppError values. Unknown users and wrong
// passwords both yield "Incorrect email or password". Tokens that fail
// validation yield a forbidden "Could not validate credentials". Reset
// tokens that are expired, forged or already used yield "Invalid token".
package users
