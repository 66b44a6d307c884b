package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("challenges")

		collection.Fields.Add(
			&core.TextField{
				Name:     "from_user_id",
				Required: true,
			},
			&core.TextField{
				Name: "from_username",
			},
			&core.NumberField{
				Name:    "from_rating",
				OnlyInt: true,
			},
			&core.TextField{
				Name:     "to_user_id",
				Required: true,
			},
			&core.TextField{
				Name:     "topic_id",
				Required: true,
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "accepted", "declined", "expired"},
			},
			&core.TextField{
				Name: "debate_id",
			},
			&core.TextField{
				Name: "created_at",
			},
			&core.NumberField{
				Name:    "expires_at",
				OnlyInt: true,
			},
			&core.NumberField{
				Name:    "version",
				OnlyInt: true,
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
			&core.AutodateField{
				Name:     "updated",
				OnCreate: true,
				OnUpdate: true,
			},
		)

		collection.AddIndex("idx_challenges_to", false, "to_user_id", "")
		collection.AddIndex("idx_challenges_status", false, "status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("challenges")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
