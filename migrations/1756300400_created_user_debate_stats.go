package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("user_debate_stats")

		collection.Fields.Add(
			&core.TextField{
				Name:     "user_id",
				Required: true,
			},
			&core.NumberField{
				Name:    "rating",
				OnlyInt: true,
			},
			&core.NumberField{
				Name:    "wins",
				OnlyInt: true,
			},
			&core.NumberField{
				Name:    "losses",
				OnlyInt: true,
			},
			&core.NumberField{
				Name:    "draws",
				OnlyInt: true,
			},
			&core.NumberField{
				Name: "win_rate",
			},
			&core.TextField{
				Name: "last_updated",
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

		collection.AddIndex("idx_stats_user", true, "user_id", "")
		collection.AddIndex("idx_stats_rating", false, "rating", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("user_debate_stats")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
