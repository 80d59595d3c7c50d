// Package accounts provides user and organization account management:
// signup, login and logout pages, JWT issuance, avatar uploads and the
// membership API backing the people list.
//
// Organizations:
//   - OrganizationService creates organizations together with the owner
//     membership in one transaction. CheckAddOrganization joins a user to an
//     existing organization, or bootstraps the first one when none exist.
//   - DestroyOrganization removes projects, SAML config, memberships and the
//     organization. Activity hooks stay silent unless WithDestroyHooks(true).
//
// Extension points:
//   - UserSaver persists a signup and picks the redirect target. Pass one with
//     WithUserSaver, Registrar is the default.
//   - LoginFormFactory builds the form that checks posted credentials. Pass one
//     with WithLoginFormFactory.
//
// Activity sinks:
//   - ActivitySink receives signup, login, logout, membership and organization
//     events. Sinks run best-effort (errors are logged), see activity/natssink
//     for a NATS publisher.
package accounts
