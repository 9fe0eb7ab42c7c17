// Package deck holds the starter prompts new owners can be seeded with.
package deck

import "github.com/listenupapp/tasksync-server/internal/domain"

// Seed is the default content for one library.
type Seed struct {
	TaskType domain.TaskType
	Category domain.Category
	Tasks    []string
}

// Defaults is the starter deck, one seed per type and category.
// Users can edit or replace any of it after seeding.
var Defaults = []Seed{
	{
		TaskType: domain.TaskTypeCouple,
		Category: domain.CategoryTruth,
		Tasks: []string{
			"What was your first impression of me?",
			"What is a habit of mine you secretly love?",
			"When did you first know this was serious?",
			"What is one thing you have never told me?",
			"Which of our trips would you repeat tomorrow?",
		},
	},
	{
		TaskType: domain.TaskTypeCouple,
		Category: domain.CategoryDare,
		Tasks: []string{
			"Recreate our first date conversation for two minutes.",
			"Write a three line poem about your partner and read it aloud.",
			"Give your partner a one minute shoulder massage.",
			"Plan our next date night right now, out loud.",
		},
	},
	{
		TaskType: domain.TaskTypeFunny,
		Category: domain.CategoryTruth,
		Tasks: []string{
			"What is the most embarrassing song on your playlist?",
			"What is the silliest thing you have cried about?",
			"Which cartoon character do you relate to most?",
			"What is the worst haircut you ever had?",
		},
	},
	{
		TaskType: domain.TaskTypeFunny,
		Category: domain.CategoryDare,
		Tasks: []string{
			"Talk like a pirate until your next turn.",
			"Do your best impression of your partner.",
			"Sing the chorus of the last song you listened to.",
			"Invent a dance move and name it.",
			"Tell a joke so bad it makes your partner groan.",
		},
	},
	{
		TaskType: domain.TaskTypeRomantic,
		Category: domain.CategoryTruth,
		Tasks: []string{
			"What is your favorite memory of us?",
			"What small gesture makes you feel most loved?",
			"Which song reminds you of me?",
			"What do you daydream about doing together?",
		},
	},
	{
		TaskType: domain.TaskTypeRomantic,
		Category: domain.CategoryDare,
		Tasks: []string{
			"Slow dance with your partner to a song of their choice.",
			"Whisper three things you adore about your partner.",
			"Write a love note and hide it somewhere for later.",
			"Hold eye contact with your partner for one full minute.",
		},
	},
	{
		TaskType: domain.TaskTypeAdventurous,
		Category: domain.CategoryTruth,
		Tasks: []string{
			"What is the most spontaneous thing you have ever done?",
			"Which place is at the top of your travel list?",
			"What is one fear you would like to conquer together?",
			"What is the wildest idea you have had for a weekend?",
		},
	},
	{
		TaskType: domain.TaskTypeAdventurous,
		Category: domain.CategoryDare,
		Tasks: []string{
			"Pick a random spot on a map and plan a day trip there.",
			"Eat a spoonful of the strangest thing in the kitchen.",
			"Let your partner choose your outfit for tomorrow.",
			"Try a new food together this week and set the date now.",
		},
	},
	{
		TaskType: domain.TaskTypeIntimate,
		Category: domain.CategoryTruth,
		Tasks: []string{
			"What makes you feel closest to me?",
			"What is something you want more of in our relationship?",
			"When do you feel most comfortable being yourself with me?",
			"What is a moment you wish we could relive?",
		},
	},
	{
		TaskType: domain.TaskTypeIntimate,
		Category: domain.CategoryDare,
		Tasks: []string{
			"Tell your partner what you find most attractive about them.",
			"Cuddle in silence for two minutes.",
			"Describe your perfect evening together in detail.",
			"Give your partner a slow kiss on the forehead.",
		},
	},
}

// Lookup returns the default tasks for a type and category.
func Lookup(t domain.TaskType, c domain.Category) ([]string, bool) {
	for _, s := range Defaults {
		if s.TaskType == t && s.Category == c {
			return domain.CloneTasks(s.Tasks), true
		}
	}
	return nil, false
}
