package apperr

var (
	// Relationship ledger
	ErrFriendCodeNotFound   = NotFound("Friend code not found")
	ErrSelfReference        = BadRequest("Cannot add yourself as a friend")
	ErrAlreadyFriends       = Conflict("Already friends with this user")
	ErrRequestPending       = Conflict("Friend request already pending")
	ErrFriendRequestMissing = NotFound("Friend request not found")
	ErrFriendshipMissing    = NotFound("Friendship not found")

	// Conversation ledger
	ErrNotFriendsMessage  = Forbidden("You can only send messages to friends")
	ErrNotFriendsView     = Forbidden("You can only view conversations with friends")
	ErrNotFriendsFile     = Forbidden("You can only send files to friends")
	ErrFileNotFound       = NotFound("File not found")
	ErrFileAccessDenied   = Forbidden("Access denied")
	ErrFileGone           = Gone("File no longer exists on server")
	ErrInvalidMessageType = BadRequest("Message type must be text or file")

	// Principal store
	ErrUserNotFound       = NotFound("User not found")
	ErrUsernameTaken      = Conflict("Username already exists")
	ErrInvalidCredentials = Unauthenticated("Invalid username or password")
	ErrTokenRequired      = Unauthenticated("Access token required")
	ErrInvalidToken       = Unauthenticated("Invalid token")
	ErrAdminRequired      = Forbidden("Admin privileges required")
)
