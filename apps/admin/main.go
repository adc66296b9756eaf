package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/catalog"
	"github.com/trezcool/escolar/core/user"
	emailsvc "github.com/trezcool/escolar/services/email"
	logsvc "github.com/trezcool/escolar/services/logger"
	"github.com/trezcool/escolar/storage/database"
	sqlxrepos "github.com/trezcool/escolar/storage/database/sqlx"
)

func main() {
	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	catSvc := catalog.NewService(sqlxrepos.NewCatalogRepository(db))

	// start CLI
	cli := commandLine{
		db:       db.DB,
		dialect:  database.Dialect(conf),
		validate: validate,
		usrSvc:   user.NewService(db, sqlxrepos.NewUserRepository(db), catSvc, emailsvc.NewConsoleService(conf, logger), conf),
		catSvc:   catSvc,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
