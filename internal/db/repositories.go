package db

// Repositories provides access to all database repositories
type Repositories struct {
	Watchlists *WatchlistRepository
	Items      *ItemRepository
	Users      *UserRepository
	Invites    *InviteRepository
}

// NewRepositories creates a new repository collection
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		Watchlists: NewWatchlistRepository(db),
		Items:      NewItemRepository(db),
		Users:      NewUserRepository(db),
		Invites:    NewInviteRepository(db),
	}
}
