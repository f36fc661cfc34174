// Package jwt issues and verifies access tokens with the claim layout used by
// the hosted auth backend (sub, email, role, session_id, exp), and decodes
// remotely issued tokens without verification.
package jwt
