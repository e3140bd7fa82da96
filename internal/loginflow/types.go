package loginflow

// CharacterEntry is the minimal character identity the flow extracts from
// a CharacterList packet: characterId and name, with the leading
// accountId field skipped (it duplicates the value already returned by
// LoginResult).
type CharacterEntry struct {
	CharacterID int64
	Name        string
}

// Result is the outcome of Login. Success iff ErrorCode == 0.
type Result struct {
	Success      bool
	AccountID    int64
	Characters   []CharacterEntry
	ErrorCode    uint8
	ErrorMessage string
}

// GameServerHandle is the game-server redirect returned by
// SelectCharacter: the address to migrate to, plus the one-time token
// that authorizes the move.
type GameServerHandle struct {
	Address [4]byte
	Port    uint16
	Token   uint64
	MapID   int32
}
