package cache

// Mutation names a write whose success invalidates cached queries.
type Mutation string

const (
	MutCreateAccount  Mutation = "create-account"
	MutSignIn         Mutation = "sign-in"
	MutSignOut        Mutation = "sign-out"
	MutCreatePost     Mutation = "create-post"
	MutUpdatePost     Mutation = "update-post"
	MutDeletePost     Mutation = "delete-post"
	MutLikePost       Mutation = "like-post"
	MutSavePost       Mutation = "save-post"
	MutDeleteSavePost Mutation = "delete-save-post"
	MutUpdateUser     Mutation = "update-user"
)

// Rule invalidates every entry under Op. With BySubject set the prefix is
// narrowed to the mutation subject (a post or user id).
type Rule struct {
	Op        string
	BySubject bool
}

// Prefix returns the key prefix the rule invalidates for subject.
func (r Rule) Prefix(subject string) Key {
	if r.BySubject && subject != "" {
		return NewKey(r.Op, subject)
	}
	return NewKey(r.Op)
}

// Invalidations is the fixed mutation to invalidated-prefix table. Create and
// delete post only refresh the recent list; paginated, per-user and saved
// listings catch up on their next natural refetch.
var Invalidations = map[Mutation][]Rule{
	MutCreateAccount: nil,
	MutSignIn:        {{Op: OpCurrentUser}},
	MutSignOut:       {{Op: OpCurrentUser}},
	MutCreatePost:    {{Op: OpRecentPosts}},
	MutDeletePost:    {{Op: OpRecentPosts}},
	MutUpdatePost:    {{Op: OpPostByID, BySubject: true}},
	MutLikePost: {
		{Op: OpPostByID, BySubject: true},
		{Op: OpRecentPosts},
		{Op: OpPosts},
		{Op: OpCurrentUser},
		{Op: OpLikedPosts},
	},
	MutSavePost:       saveRules,
	MutDeleteSavePost: saveRules,
	MutUpdateUser: {
		{Op: OpCurrentUser},
		{Op: OpUserByID, BySubject: true},
	},
}

var saveRules = []Rule{
	{Op: OpRecentPosts},
	{Op: OpPosts},
	{Op: OpCurrentUser},
	{Op: OpSavedPosts, BySubject: true},
	{Op: OpSaveRecords, BySubject: true},
}
