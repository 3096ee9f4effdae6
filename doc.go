// Package auth implements the authentication and authorization layer of the
// HR service: bearer token issuance and validation, password policy,
// credential storage, and exact-membership role checks.
//
// Request flow:
//   - middleware/authfilter runs once per request. Exempt paths are matched
//     before any header parsing. A valid bearer token is resolved to an
//     AuthenticatedIdentity through the CredentialStore and attached to the
//     request.
//   - Authorize (and the RequireRoles handler) gate operations behind a
//     RoleRequirement. A missing identity is ErrAuthenticationRequired, a
//     role outside the set is ErrInsufficientPrivileges.
//
// Login flow:
//   - Service.Login looks the user up by email, verifies the password with
//     the PasswordHasher and issues a token through the TokenService.
//     Unknown email and wrong password are distinct errors.
//   - The social package exchanges Google and GitHub authorization codes,
//     resolves or creates the local user by email and issues the same kind
//     of token.
//
// Activity sinks:
//   - ActivitySink receives login, registration and social login events.
//     Sinks run best effort so auditing never blocks authentication.
package auth
